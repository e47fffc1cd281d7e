package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yok-tottii/EzClassify/internal/audio"
	"github.com/yok-tottii/EzClassify/internal/logger"
)

// ErrBusy is returned when a capture is started while another is in flight
var ErrBusy = errors.New("recording: capture already in progress")

// Recorder captures a fixed-length sample to a WAV file. Record blocks until
// the file is written or ctx is cancelled; a cancelled capture writes nothing.
type Recorder interface {
	Record(ctx context.Context, path string, duration time.Duration) error
}

// State represents the current recording state
type State int

const (
	// Idle means not recording
	Idle State = iota
	// Recording means currently capturing audio
	Recording
	// Processing means encoding captured audio to disk
	Processing
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Processing:
		return "Processing"
	default:
		return "Unknown"
	}
}

// Config holds configuration for the recording manager
type Config struct {
	MaxDuration time.Duration
	SampleRate  int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxDuration: 60 * time.Second,
		SampleRate:  audio.SampleRate,
	}
}

// Manager drives an AudioDriver through timed captures
type Manager struct {
	state       State
	audio       audio.AudioDriver
	maxDuration time.Duration
	sampleRate  int
	cancel      context.CancelFunc
	log         *logger.Logger
	mu          sync.Mutex
}

// New creates a new recording manager
func New(ad audio.AudioDriver, config Config, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if config.SampleRate == 0 {
		config.SampleRate = audio.SampleRate
	}
	return &Manager{
		state:       Idle,
		audio:       ad,
		maxDuration: config.MaxDuration,
		sampleRate:  config.SampleRate,
		log:         log,
	}
}

// Record captures duration of audio and writes it to path
func (m *Manager) Record(ctx context.Context, path string, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("invalid capture duration: %v", duration)
	}
	if m.maxDuration > 0 && duration > m.maxDuration {
		return fmt.Errorf("capture duration %v exceeds maximum %v", duration, m.maxDuration)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := m.begin(cancel); err != nil {
		return err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	m.setState(Processing)
	defer m.finish()

	// The driver is always stopped so start and stop calls stay paired
	data, err := m.audio.StopRecording()
	if ctx.Err() != nil {
		m.log.Debug("Capture to %s abandoned: %v", path, ctx.Err())
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("failed to stop audio recording: %w", err)
	}

	if err := audio.WriteWAV(path, data, m.sampleRate); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}

	m.log.Debug("Captured %v to %s (%d bytes)", duration, path, len(data))
	return nil
}

func (m *Manager) begin(cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return ErrBusy
	}

	if err := m.audio.StartRecording(); err != nil {
		return fmt.Errorf("failed to start audio recording: %w", err)
	}

	m.state = Recording
	m.cancel = cancel
	return nil
}

func (m *Manager) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	m.cancel = nil
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// GetState returns the current recording state
func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stop abandons the capture in flight, if any
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
}
