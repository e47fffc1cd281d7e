package audio

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cryptix/wav"
	"github.com/pkg/errors"
)

// WAVInfo describes the header of a WAV file on disk
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       int
	Duration      time.Duration
}

// MatchesServerFormat reports whether the file is mono 16-bit 44.1kHz PCM
func (i WAVInfo) MatchesServerFormat() bool {
	return i.SampleRate == SampleRate && i.Channels == Channels && i.BitsPerSample == BitsPerSample
}

// WriteWAV writes 16-bit little-endian mono PCM to path, replacing any
// existing file. The parent directory is created if needed.
func WriteWAV(path string, pcm []byte, sampleRate int) (err error) {
	if len(pcm)%2 != 0 {
		return errors.Errorf("audio: pcm length %d is not a whole number of 16-bit samples", len(pcm))
	}

	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "audio: mkdirall %s failed", filepath.Dir(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "audio: creating %s failed", path)
	}

	meta := wav.File{
		SampleRate:      uint32(sampleRate),
		Channels:        Channels,
		SignificantBits: BitsPerSample,
	}

	w, err := meta.NewWriter(f)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "audio: creating wav writer for %s failed", path)
	}

	for i := 0; i < len(pcm); i += 2 {
		if err = w.WriteSample(pcm[i : i+2]); err != nil {
			w.Close()
			return errors.Wrapf(err, "audio: writing sample %d to %s failed", i/2, path)
		}
	}

	if err = w.Close(); err != nil {
		return errors.Wrapf(err, "audio: closing %s failed", path)
	}

	// wav.Writer counts its own header bytes into the chunk sizes
	return patchChunkSizes(path, len(pcm))
}

const (
	headerSize      = 44
	riffSizeOffset  = 4
	dataSizeOffset  = 40
	riffSizeBase = headerSize - 8
)

// patchChunkSizes rewrites the RIFF and data chunk sizes of a canonical
// 44-byte-header PCM file holding dataLen bytes of samples
func patchChunkSizes(path string, dataLen int) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "audio: reopening %s failed", path)
	}

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(riffSizeBase+dataLen))
	if _, err := f.WriteAt(size[:], riffSizeOffset); err != nil {
		f.Close()
		return errors.Wrapf(err, "audio: patching riff size of %s failed", path)
	}
	binary.LittleEndian.PutUint32(size[:], uint32(dataLen))
	if _, err := f.WriteAt(size[:], dataSizeOffset); err != nil {
		f.Close()
		return errors.Wrapf(err, "audio: patching data size of %s failed", path)
	}

	if err := f.Truncate(int64(headerSize + dataLen)); err != nil {
		f.Close()
		return errors.Wrapf(err, "audio: truncating %s failed", path)
	}
	return errors.Wrapf(f.Close(), "audio: closing %s failed", path)
}

// ReadWAVInfo opens path and parses its WAV header
func ReadWAVInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, errors.Wrapf(err, "audio: opening %s failed", path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return WAVInfo{}, errors.Wrapf(err, "audio: stating %s failed", path)
	}

	r, err := wav.NewReader(f, stat.Size())
	if err != nil {
		return WAVInfo{}, errors.Wrapf(err, "audio: parsing wav header of %s failed", path)
	}

	return infoFromReader(r), nil
}

func infoFromReader(r *wav.Reader) WAVInfo {
	meta := r.GetFile()
	info := WAVInfo{
		SampleRate:    int(meta.SampleRate),
		Channels:      int(meta.Channels),
		BitsPerSample: int(meta.SignificantBits),
		Samples:       int(r.GetSampleCount()),
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(info.Samples) * time.Second / time.Duration(info.SampleRate)
	}
	return info
}

// ReadWAV loads a 16-bit PCM file into memory
func ReadWAV(path string) ([]int16, WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WAVInfo{}, errors.Wrapf(err, "audio: opening %s failed", path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, WAVInfo{}, errors.Wrapf(err, "audio: stating %s failed", path)
	}

	r, err := wav.NewReader(f, stat.Size())
	if err != nil {
		return nil, WAVInfo{}, errors.Wrapf(err, "audio: parsing wav header of %s failed", path)
	}

	info := infoFromReader(r)
	if info.BitsPerSample != BitsPerSample {
		return nil, info, errors.Errorf("audio: %s has %d-bit samples, only %d-bit is supported",
			path, info.BitsPerSample, BitsPerSample)
	}

	samples := make([]int16, 0, info.Samples)
	for i := 0; i < info.Samples; i++ {
		s, err := r.ReadSample()
		if err == io.EOF {
			// older recordings overstate the data chunk size
			break
		}
		if err != nil {
			return nil, info, errors.Wrapf(err, "audio: reading sample %d of %s failed", i, path)
		}
		samples = append(samples, int16(uint16(s)))
	}
	return samples, info, nil
}
