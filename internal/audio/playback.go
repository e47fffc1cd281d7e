package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Play writes a WAV file to the default output device using a blocking
// stream. Only one file plays at a time; capture is unaffected.
func (d *PortAudioDriver) Play(ctx context.Context, path string) error {
	samples, info, err := ReadWAV(path)
	if err != nil {
		return err
	}

	d.playMu.Lock()
	defer d.playMu.Unlock()

	if info.Channels <= 0 {
		return fmt.Errorf("%s has no audio channels", path)
	}

	// interleaved: one buffer holds framesPerBuffer frames of every channel
	buf := make([]int16, framesPerBuffer*info.Channels)
	stream, err := portaudio.OpenDefaultStream(0, info.Channels, float64(info.SampleRate), framesPerBuffer, &buf)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return err
		}

		n := copy(buf, samples[off:])
		// pad the final buffer with silence
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}

		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			stream.Abort()
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	return nil
}
