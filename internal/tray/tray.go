package tray

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"github.com/yok-tottii/EzClassify/internal/i18n"
	"github.com/yok-tottii/EzClassify/internal/live"
	"github.com/yok-tottii/EzClassify/internal/logger"
)

const appName = "EzClassify"

// Manager shows the live loop in the system tray. It is a live.Observer.
type Manager struct {
	mu         sync.Mutex
	snapshot   live.Snapshot
	ready      bool
	translator *i18n.Translator
	log        *logger.Logger

	onReadyCallback func()
	onToggleLive    func()
	onTrain         func()
	onSave          func()
	onCopyResult    func()
	onQuit          func()

	menuLive   *systray.MenuItem
	menuTrain  *systray.MenuItem
	menuSave   *systray.MenuItem
	menuCopy   *systray.MenuItem
	menuQuit   *systray.MenuItem
	iconCache  map[live.Color][]byte
	iconCacheM sync.Mutex
}

// Config holds tray manager configuration
type Config struct {
	Translator   *i18n.Translator
	Logger       *logger.Logger
	OnReady      func() // Called when systray is ready for initialization
	OnToggleLive func()
	OnTrain      func()
	OnSave       func()
	OnCopyResult func()
	OnQuit       func()
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	if config.Translator == nil {
		config.Translator = i18n.NewTranslator(i18n.LanguagePortuguese)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	return &Manager{
		snapshot:        live.Snapshot{State: live.Idle, Display: live.InitialDisplay()},
		translator:      config.Translator,
		log:             config.Logger,
		onReadyCallback: config.OnReady,
		onToggleLive:    config.OnToggleLive,
		onTrain:         config.OnTrain,
		onSave:          config.OnSave,
		onCopyResult:    config.OnCopyResult,
		onQuit:          config.OnQuit,
		iconCache:       make(map[live.Color][]byte),
	}
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// onReady is called when systray is ready
func (m *Manager) onReady() {
	t := m.translator.Translate

	m.menuLive = systray.AddMenuItem(t("menu.live_start"), "Toggle live classification")
	m.menuCopy = systray.AddMenuItem(t("menu.copy_result"), "Copy the current verdict")
	systray.AddSeparator()
	m.menuTrain = systray.AddMenuItem(t("menu.train"), "Train on all labeled samples")
	m.menuSave = systray.AddMenuItem(t("menu.save"), "Save the current network")
	systray.AddSeparator()
	m.menuQuit = systray.AddMenuItem(t("menu.quit"), "Quit the application")

	m.mu.Lock()
	m.ready = true
	snap := m.snapshot
	m.mu.Unlock()
	m.render(snap)

	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

// onExit is called when systray is exiting
func (m *Manager) onExit() {
	m.mu.Lock()
	m.ready = false
	m.mu.Unlock()
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	call := func(fn func()) {
		if fn != nil {
			fn()
		}
	}

	for {
		select {
		case <-m.menuLive.ClickedCh:
			call(m.onToggleLive)
		case <-m.menuCopy.ClickedCh:
			call(m.onCopyResult)
		case <-m.menuTrain.ClickedCh:
			call(m.onTrain)
		case <-m.menuSave.ClickedCh:
			call(m.onSave)
		case <-m.menuQuit.ClickedCh:
			call(m.onQuit)
			systray.Quit()
			return
		}
	}
}

// Update implements live.Observer
func (m *Manager) Update(snap live.Snapshot) {
	m.mu.Lock()
	m.snapshot = snap
	ready := m.ready
	m.mu.Unlock()

	if ready {
		m.render(snap)
	}
}

// render pushes a snapshot to the tray
func (m *Manager) render(snap live.Snapshot) {
	p := present(snap, m.translator)

	systray.SetIcon(m.icon(p.Color))
	systray.SetTooltip(p.Tooltip)
	systray.SetTitle(p.Title)

	if m.menuLive != nil {
		m.menuLive.SetTitle(p.ToggleLabel)
	}
}

// presentation is what the tray shows for a snapshot
type presentation struct {
	Color       live.Color
	Title       string
	Tooltip     string
	ToggleLabel string
}

func present(snap live.Snapshot, tr *i18n.Translator) presentation {
	status := tr.Translate("status." + strings.ToLower(snap.State.String()))

	p := presentation{
		Color:       snap.Display.Color,
		Title:       snap.Display.Label,
		Tooltip:     fmt.Sprintf("%s - %s", appName, status),
		ToggleLabel: tr.Translate("menu.live_start"),
	}
	if snap.State.Active() {
		p.ToggleLabel = tr.Translate("menu.live_stop")
	}
	if snap.State == live.Failed {
		p.Tooltip = fmt.Sprintf("%s - %s", appName, snap.Error)
	}
	if p.Color == "" {
		p.Color = live.White
	}
	return p
}

var palette = map[live.Color]color.RGBA{
	live.White:  {0xE3, 0xE3, 0xE3, 0xFF},
	live.Green:  {0x34, 0xC7, 0x59, 0xFF},
	live.Blue:   {0x00, 0x7A, 0xFF, 0xFF},
	live.Orange: {0xF1, 0x9E, 0x39, 0xFF},
}

// icon returns a cached 16x16 filled circle in the display colour
func (m *Manager) icon(c live.Color) []byte {
	m.iconCacheM.Lock()
	defer m.iconCacheM.Unlock()

	if data, ok := m.iconCache[c]; ok {
		return data
	}

	data, err := circleIcon(palette[c], 16)
	if err != nil {
		m.log.Warn("Failed to render tray icon: %v", err)
		return nil
	}
	m.iconCache[c] = data
	return data
}

func circleIcon(fill color.RGBA, size int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	r := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, fill)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ShowNotification shows a notification using macOS Notification Center
func (m *Manager) ShowNotification(title, message string) {
	m.log.Info("Notification: %s - %s", title, message)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		escapeAppleScript(message),
		escapeAppleScript(title))
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		m.log.Debug("osascript unavailable: %v", err)
	}
}

// escapeAppleScript escapes special characters for AppleScript
func escapeAppleScript(s string) string {
	// Escape backslashes first to avoid double-escaping
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}

// ShowError shows an error notification
func (m *Manager) ShowError(message string) {
	m.ShowNotification(appName+" Error", message)
}

// ShowSuccess shows a success notification
func (m *Manager) ShowSuccess(message string) {
	m.ShowNotification(appName, message)
}
