// Package samples manages labeled WAV recordings on disk.
//
// Layout under the root directory:
//
//	class0/    samples labeled 0
//	class1/    samples labeled 1
//	classify/  ad-hoc samples to classify
//	temp/      the live loop's scratch file
package samples

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yok-tottii/EzClassify/internal/audio"
	"github.com/yok-tottii/EzClassify/internal/prefs"
)

var (
	// ErrIndexOutOfRange is returned by Delete for an index outside the listing
	ErrIndexOutOfRange = errors.New("samples: index out of range")
	// ErrUnknownBucket is returned for a bucket name that is not one of Buckets
	ErrUnknownBucket = errors.New("samples: unknown bucket")
)

// Bucket is a labeled subdirectory of the store
type Bucket string

const (
	Class0   Bucket = "class0"
	Class1   Bucket = "class1"
	Classify Bucket = "classify"
	Temp     Bucket = "temp"
)

// ScratchName is the file the live loop overwrites every cycle
const ScratchName = "live_classification.wav"

const wavExt = ".wav"

// Buckets lists every bucket in display order
func Buckets() []Bucket {
	return []Bucket{Class0, Class1, Classify, Temp}
}

// ParseBucket validates a bucket name
func ParseBucket(name string) (Bucket, error) {
	for _, b := range Buckets() {
		if string(b) == name {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBucket, name)
}

// Label returns the training label for the bucket, or -1 if it has none
func (b Bucket) Label() int {
	switch b {
	case Class0:
		return 0
	case Class1:
		return 1
	default:
		return -1
	}
}

// Sample is one recording on disk
type Sample struct {
	Name   string `json:"name"`
	Bucket Bucket `json:"bucket"`
	Path   string `json:"path"`
}

// Store is the on-disk sample collection
type Store struct {
	root  string
	prefs prefs.Store
	now   func() time.Time
}

// NewStore creates a store rooted at root. p may be nil, in which case
// DeleteAll leaves preferences alone.
func NewStore(root string, p prefs.Store) *Store {
	return &Store{
		root:  root,
		prefs: p,
		now:   time.Now,
	}
}

// Root returns the store's root directory
func (s *Store) Root() string {
	return s.root
}

func (s *Store) dir(bucket Bucket) (string, error) {
	if _, err := ParseBucket(string(bucket)); err != nil {
		return "", err
	}
	return filepath.Join(s.root, string(bucket)), nil
}

// List returns the .wav files in bucket in directory order. A bucket that
// was never written to is empty.
func (s *Store) List(bucket Bucket) ([]Sample, error) {
	dir, err := s.dir(bucket)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Sample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}

	result := make([]Sample, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), wavExt) {
			continue
		}
		result = append(result, Sample{
			Name:   entry.Name(),
			Bucket: bucket,
			Path:   filepath.Join(dir, entry.Name()),
		})
	}
	return result, nil
}

// MostRecent returns the sample whose filename sorts last. Names are
// compared as strings, so "999.wav" beats "1000.wav".
func (s *Store) MostRecent(bucket Bucket) (Sample, bool, error) {
	list, err := s.List(bucket)
	if err != nil {
		return Sample{}, false, err
	}
	if len(list) == 0 {
		return Sample{}, false, nil
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name > list[j].Name })
	return list[0], true, nil
}

// Delete removes the index-th entry of List(bucket)
func (s *Store) Delete(bucket Bucket, index int) error {
	sample, err := s.Get(bucket, index)
	if err != nil {
		return err
	}

	if err := os.Remove(sample.Path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", sample.Name, err)
	}
	return nil
}

// Get returns the sample at index in List order
func (s *Store) Get(bucket Bucket, index int) (Sample, error) {
	list, err := s.List(bucket)
	if err != nil {
		return Sample{}, err
	}
	if index < 0 || index >= len(list) {
		return Sample{}, fmt.Errorf("%w: %d (bucket %s has %d samples)", ErrIndexOutOfRange, index, bucket, len(list))
	}
	return list[index], nil
}

// DeleteAll removes everything under the root, labeled or not, and forgets
// the last saved network name.
func (s *Store) DeleteAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to list %s: %w", s.root, err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
		}
	}

	if s.prefs != nil {
		if err := s.prefs.Delete(ctx, prefs.LastSavedNetworkKey); err != nil {
			return err
		}
	}
	return nil
}

// NewSamplePath reserves a timestamp-named sample in bucket, creating the
// bucket directory. The file itself is written by the recorder.
func (s *Store) NewSamplePath(bucket Bucket) (Sample, error) {
	dir, err := s.dir(bucket)
	if err != nil {
		return Sample{}, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Sample{}, fmt.Errorf("failed to create %s: %w", bucket, err)
	}

	name := timestampName(s.now())
	return Sample{Name: name, Bucket: bucket, Path: filepath.Join(dir, name)}, nil
}

// timestampName formats t as fractional unix seconds, e.g. 1700000000.123456.wav
func timestampName(t time.Time) string {
	secs := float64(t.UnixNano()) / float64(time.Second)
	return strconv.FormatFloat(secs, 'f', 6, 64) + wavExt
}

// Scratch returns the live loop's reusable sample
func (s *Store) Scratch() Sample {
	return Sample{Name: ScratchName, Bucket: Temp, Path: s.ScratchPath()}
}

// ScratchPath returns <root>/temp/live_classification.wav
func (s *Store) ScratchPath() string {
	return filepath.Join(s.root, string(Temp), ScratchName)
}

// Duration reads the sample's length from its WAV header
func (s *Store) Duration(sample Sample) (time.Duration, error) {
	info, err := audio.ReadWAVInfo(sample.Path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}
