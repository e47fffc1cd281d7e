package clipboard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-vgo/robotgo"

	"github.com/yok-tottii/EzClassify/internal/classifier"
)

// Backend reads and writes the system pasteboard
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type robotgoBackend struct{}

func (robotgoBackend) ReadAll() (string, error) { return robotgo.ReadAll() }
func (robotgoBackend) WriteAll(text string) error { return robotgo.WriteAll(text) }

// Manager copies classification results to the clipboard
type Manager struct {
	backend Backend
	mu      sync.Mutex
	last    string
}

// NewManager creates a clipboard manager backed by the system pasteboard
func NewManager() *Manager {
	return NewManagerWithBackend(robotgoBackend{})
}

// NewManagerWithBackend creates a manager using b
func NewManagerWithBackend(b Backend) *Manager {
	return &Manager{backend: b}
}

// FormatResult renders a result the way it is pasted, e.g. "1 (92.5%)"
func FormatResult(result classifier.Result) string {
	return fmt.Sprintf("%d (%.1f%%)", result.Class, result.Confidence*100)
}

// Copy places text on the clipboard. Writing the same text twice in a row
// is skipped so the user's pasteboard history is not flooded.
func (m *Manager) Copy(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("nothing to copy")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if text == m.last {
		current, err := m.backend.ReadAll()
		if err == nil && current == text {
			return nil
		}
	}

	if err := m.backend.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	m.last = text
	return nil
}

// CopyResult copies a formatted classification result
func (m *Manager) CopyResult(result *classifier.Result) error {
	if result == nil {
		return fmt.Errorf("no classification result to copy")
	}
	return m.Copy(FormatResult(*result))
}

// Read returns the current clipboard text
func (m *Manager) Read() (string, error) {
	text, err := m.backend.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}
