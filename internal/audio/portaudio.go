package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// PortAudioDriver implements AudioDriver using PortAudio
type PortAudioDriver struct {
	config      Config
	stream      *portaudio.Stream
	samples     []int16
	mu          sync.Mutex
	recording   bool
	initialized bool
	playMu      sync.Mutex
}

// NewPortAudioDriver creates a new PortAudio driver
func NewPortAudioDriver() (*PortAudioDriver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioDriver{
		// one minute of mono 44.1kHz audio
		samples: make([]int16, 0, SampleRate*60),
	}, nil
}

// ListDevices returns a list of available audio input devices
func (d *PortAudioDriver) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, _ := portaudio.DefaultInputDevice()

	var result []Device
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:        i,
			Name:      dev.Name,
			IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
		})
	}

	return result, nil
}

func inputDevice(id int) (*portaudio.DeviceInfo, error) {
	if id == -1 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", id)
	}
	return devices[id], nil
}

// Initialize opens an input stream on the configured device
func (d *PortAudioDriver) Initialize(config Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recording {
		return fmt.Errorf("cannot initialize while recording")
	}

	if d.stream != nil {
		if err := d.stream.Close(); err != nil {
			return fmt.Errorf("failed to close existing stream: %w", err)
		}
		d.stream = nil
	}

	device, err := inputDevice(config.DeviceID)
	if err != nil {
		return err
	}

	if device.MaxInputChannels < config.Channels {
		return fmt.Errorf("device '%s' (ID: %d) has %d input channels, need %d",
			device.Name, config.DeviceID, device.MaxInputChannels, config.Channels)
	}

	var latency time.Duration
	switch config.Latency {
	case LowLatency:
		latency = device.DefaultLowInputLatency
	default:
		latency = device.DefaultHighInputLatency
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: config.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, d.capture)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	d.stream = stream
	d.config = config
	d.initialized = true

	return nil
}

// capture is the PortAudio callback
func (d *PortAudioDriver) capture(in []int16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recording {
		d.samples = append(d.samples, in...)
	}
}

// StartRecording starts recording audio
func (d *PortAudioDriver) StartRecording() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return fmt.Errorf("driver not initialized")
	}
	if d.recording {
		return fmt.Errorf("already recording")
	}

	d.samples = d.samples[:0]

	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	d.recording = true
	return nil
}

// StopRecording stops recording and returns the captured PCM
func (d *PortAudioDriver) StopRecording() ([]byte, error) {
	d.mu.Lock()
	if !d.recording {
		d.mu.Unlock()
		return nil, fmt.Errorf("not recording")
	}
	d.recording = false
	stream := d.stream
	d.mu.Unlock()

	// Stop waits for the callback to return, so the lock must not be held
	if err := stream.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop stream: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return encodePCM16(d.samples), nil
}

// encodePCM16 serializes samples as little-endian 16-bit PCM
func encodePCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// IsRecording returns whether recording is currently active
func (d *PortAudioDriver) IsRecording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}

// Close releases all resources
func (d *PortAudioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recording {
		if err := d.stream.Stop(); err != nil {
			return fmt.Errorf("failed to stop stream: %w", err)
		}
		d.recording = false
	}

	if d.stream != nil {
		if err := d.stream.Close(); err != nil {
			return fmt.Errorf("failed to close stream: %w", err)
		}
		d.stream = nil
	}

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	d.initialized = false
	return nil
}
