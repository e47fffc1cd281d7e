package hotkey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.design/x/hotkey"

	"github.com/yok-tottii/EzClassify/internal/config"
)

func TestNew(t *testing.T) {
	m := New()
	require.NotNil(t, m)

	config := m.GetConfig()
	assert.Len(t, config.Modifiers, 2)
	assert.Equal(t, hotkey.KeyL, config.Key)
	assert.False(t, m.IsRunning())
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		want    hotkey.Key
		wantErr bool
	}{
		{"L", hotkey.KeyL, false},
		{"l", hotkey.KeyL, false},
		{"7", hotkey.Key7, false},
		{"Space", hotkey.KeySpace, false},
		{" ", hotkey.KeySpace, false},
		{"\u00a0", hotkey.KeySpace, false},
		{"F5", hotkey.KeyF5, false},
		{"PageUp", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromConfig(t *testing.T) {
	hc, err := FromConfig(config.HotkeyConfig{Ctrl: true, Alt: true, Key: "L"})
	require.NoError(t, err)
	assert.Equal(t, []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption}, hc.Modifiers)
	assert.Equal(t, hotkey.KeyL, hc.Key)
	assert.Equal(t, "⌃⌥L", hc.String())

	hc, err = FromConfig(config.HotkeyConfig{Shift: true, Cmd: true, Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, []hotkey.Modifier{hotkey.ModShift, hotkey.ModCmd}, hc.Modifiers)

	_, err = FromConfig(config.HotkeyConfig{Key: "L"})
	assert.Error(t, err, "a bare key is not a global hotkey")

	_, err = FromConfig(config.HotkeyConfig{Ctrl: true, Key: "Nope"})
	assert.Error(t, err)
}

func TestCheckConflicts(t *testing.T) {
	tests := []struct {
		name           string
		modifiers      []hotkey.Modifier
		key            hotkey.Key
		expectConflict bool
	}{
		{
			name:           "Spotlight conflict (Cmd+Space)",
			modifiers:      []hotkey.Modifier{hotkey.ModCmd},
			key:            hotkey.KeySpace,
			expectConflict: true,
		},
		{
			name:           "No conflict (Ctrl+Option+L)",
			modifiers:      []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption},
			key:            hotkey.KeyL,
			expectConflict: false,
		},
		{
			name:           "Lock Screen conflict (Ctrl+Cmd+Q)",
			modifiers:      []hotkey.Modifier{hotkey.ModCmd, hotkey.ModCtrl},
			key:            hotkey.KeyQ,
			expectConflict: true,
		},
		{
			name:           "Force Quit conflict (Cmd+Option+Esc)",
			modifiers:      []hotkey.Modifier{hotkey.ModCmd, hotkey.ModOption},
			key:            hotkey.KeyEscape,
			expectConflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts := CheckConflicts(tt.modifiers, tt.key)
			assert.Equal(t, tt.expectConflict, len(conflicts) > 0, "found %d conflicts", len(conflicts))
		})
	}
}

func TestFormatHotkey(t *testing.T) {
	tests := []struct {
		name      string
		modifiers []hotkey.Modifier
		key       hotkey.Key
		expected  string
	}{
		{"Ctrl+Option+L", []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption}, hotkey.KeyL, "⌃⌥L"},
		{"Cmd+Space", []hotkey.Modifier{hotkey.ModCmd}, hotkey.KeySpace, "⌘Space"},
		{"Cmd+Shift+A", []hotkey.Modifier{hotkey.ModCmd, hotkey.ModShift}, hotkey.KeyA, "⌘⇧A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatHotkey(tt.modifiers, tt.key))
		})
	}
}

func TestHotkeyMatches(t *testing.T) {
	ctrlOpt := []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption}
	optCtrl := []hotkey.Modifier{hotkey.ModOption, hotkey.ModCtrl}

	assert.True(t, hotkeyMatches(ctrlOpt, hotkey.KeyL, ctrlOpt, hotkey.KeyL))
	assert.True(t, hotkeyMatches(ctrlOpt, hotkey.KeyL, optCtrl, hotkey.KeyL), "modifier order is irrelevant")
	assert.False(t, hotkeyMatches(ctrlOpt, hotkey.KeyL, ctrlOpt, hotkey.KeyK))
	assert.False(t, hotkeyMatches([]hotkey.Modifier{hotkey.ModCtrl}, hotkey.KeyL, []hotkey.Modifier{hotkey.ModCmd}, hotkey.KeyL))
}

func TestManagerLifecycle(t *testing.T) {
	m := New()

	assert.False(t, m.IsRunning())

	// Close should be safe on non-running manager
	assert.NoError(t, m.Close())

	// Registration needs accessibility permissions and a window server,
	// so it is exercised manually through `ezclassify serve`.
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m := New()
	m.presses = make(chan struct{}, 1)
	m.presses <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	pressed := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		m.Run(ctx, func() { pressed <- struct{}{} })
		close(done)
	}()

	select {
	case <-pressed:
	case <-time.After(time.Second):
		t.Fatal("press was not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGetConfigReturnsCopy(t *testing.T) {
	m := New()

	config := m.GetConfig()
	config.Modifiers[0] = hotkey.ModCmd

	assert.Equal(t, hotkey.ModCtrl, m.GetConfig().Modifiers[0])
}
