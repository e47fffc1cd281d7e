package hotkey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"

	"github.com/yok-tottii/EzClassify/internal/config"
)

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
}

// DefaultConfig returns Ctrl+Option+L
func DefaultConfig() Config {
	return Config{
		Modifiers: []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption},
		Key:       hotkey.KeyL,
	}
}

var keyMap = map[string]hotkey.Key{
	"Space": hotkey.KeySpace,
	"A":     hotkey.KeyA, "B": hotkey.KeyB, "C": hotkey.KeyC, "D": hotkey.KeyD,
	"E": hotkey.KeyE, "F": hotkey.KeyF, "G": hotkey.KeyG, "H": hotkey.KeyH,
	"I": hotkey.KeyI, "J": hotkey.KeyJ, "K": hotkey.KeyK, "L": hotkey.KeyL,
	"M": hotkey.KeyM, "N": hotkey.KeyN, "O": hotkey.KeyO, "P": hotkey.KeyP,
	"Q": hotkey.KeyQ, "R": hotkey.KeyR, "S": hotkey.KeyS, "T": hotkey.KeyT,
	"U": hotkey.KeyU, "V": hotkey.KeyV, "W": hotkey.KeyW, "X": hotkey.KeyX,
	"Y": hotkey.KeyY, "Z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"Return": hotkey.KeyReturn, "Escape": hotkey.KeyEscape, "Tab": hotkey.KeyTab,
	"F1": hotkey.KeyF1, "F2": hotkey.KeyF2, "F3": hotkey.KeyF3, "F4": hotkey.KeyF4,
	"F5": hotkey.KeyF5, "F6": hotkey.KeyF6, "F7": hotkey.KeyF7, "F8": hotkey.KeyF8,
}

// ParseKey maps a key name such as "L" or "Space" to a key code
func ParseKey(name string) (hotkey.Key, error) {
	// macOS IMEs may send NBSP for the space bar
	if name == "\u00a0" || name == " " {
		name = "Space"
	}
	if len(name) == 1 {
		name = strings.ToUpper(name)
	}
	if key, ok := keyMap[name]; ok {
		return key, nil
	}
	return 0, fmt.Errorf("unsupported hotkey key: %q", name)
}

// FromConfig converts the configured hotkey
func FromConfig(hc config.HotkeyConfig) (Config, error) {
	key, err := ParseKey(hc.Key)
	if err != nil {
		return Config{}, err
	}

	var mods []hotkey.Modifier
	if hc.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if hc.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if hc.Alt {
		mods = append(mods, hotkey.ModOption)
	}
	if hc.Cmd {
		mods = append(mods, hotkey.ModCmd)
	}
	if len(mods) == 0 {
		return Config{}, fmt.Errorf("at least one modifier key (Ctrl/Shift/Alt/Cmd) is required")
	}

	return Config{Modifiers: mods, Key: key}, nil
}

// String returns the hotkey in display form, e.g. ⌃⌥L
func (c Config) String() string {
	return FormatHotkey(c.Modifiers, c.Key)
}

// Manager manages global hotkey registration. Every key press is delivered
// on Presses; the live loop treats each one as a toggle.
type Manager struct {
	hk       *hotkey.Hotkey
	config   Config
	presses  chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// New creates a new hotkey manager
func New() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Register registers the hotkey with the system
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.config = config

	// Recreate channels (they may have been closed by a previous Close())
	m.stopChan = make(chan struct{})
	m.presses = make(chan struct{}, 1)

	hk := hotkey.New(m.config.Modifiers, m.config.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", config, err)
	}

	m.hk = hk
	m.running = true

	m.wg.Add(1)
	go m.listen(hk, m.presses, m.stopChan)

	return nil
}

// listen forwards key presses; a press arriving while one is pending is dropped
func (m *Manager) listen(hk *hotkey.Hotkey, presses chan<- struct{}, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-hk.Keydown():
			select {
			case presses <- struct{}{}:
			default:
			}
		case <-stop:
			return
		}
	}
}

// Presses returns the channel of key presses
func (m *Manager) Presses() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presses
}

// Run calls onPress for every key press until ctx is done or the manager is closed
func (m *Manager) Run(ctx context.Context, onPress func()) {
	presses := m.Presses()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-presses:
			if !ok {
				return
			}
			onPress()
		}
	}
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	close(m.stopChan)
	m.wg.Wait()

	// Clean up even if Unregister fails so Register can be called again
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
	}

	close(m.presses)
	m.running = false

	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered and running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetConfig returns a copy of the current hotkey configuration
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := m.config
	if m.config.Modifiers != nil {
		configCopy.Modifiers = make([]hotkey.Modifier, len(m.config.Modifiers))
		copy(configCopy.Modifiers, m.config.Modifiers)
	}

	return configCopy
}
