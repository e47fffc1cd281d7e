package audio

import "context"

// Device represents an audio input device
type Device struct {
	ID        int
	Name      string
	IsDefault bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// Sample format expected by the classification server. It must not vary.
const (
	SampleRate    = 44100
	Channels      = 1
	BitsPerSample = 16
)

// Config holds audio configuration
type Config struct {
	DeviceID   int
	SampleRate int
	Channels   int
	Latency    LatencyMode
}

// DefaultConfig returns the capture configuration the server expects:
// 44.1kHz, mono, 16-bit linear PCM, little-endian.
func DefaultConfig() Config {
	return Config{
		DeviceID:   -1, // -1 means use default device
		SampleRate: SampleRate,
		Channels:   Channels,
		Latency:    HighStability,
	}
}

// BytesPerSecond returns the PCM byte rate for the configuration
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * BitsPerSample / 8
}

// AudioDriver is the interface for audio input
type AudioDriver interface {
	// ListDevices returns a list of available audio input devices
	ListDevices() ([]Device, error)

	// Initialize initializes the audio driver with the given configuration
	Initialize(config Config) error

	// StartRecording starts recording audio
	StartRecording() error

	// StopRecording stops recording and returns the recorded audio data
	// as 16-bit little-endian PCM
	StopRecording() ([]byte, error)

	// IsRecording returns whether recording is currently active
	IsRecording() bool

	// Close releases all resources
	Close() error
}

// Player plays back a recorded WAV file. Play blocks until the file has
// been played or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, path string) error
}
