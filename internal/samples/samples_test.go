package samples

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/EzClassify/internal/audio"
	"github.com/yok-tottii/EzClassify/internal/prefs"
)

func touch(t *testing.T, root string, bucket Bucket, names ...string) {
	t.Helper()
	dir := filepath.Join(root, string(bucket))
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("RIFF"), 0644))
	}
}

func names(list []Sample) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Name
	}
	return out
}

func TestListMissingBucket(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	list, err := store.List(Class0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestListOnlyWAV(t *testing.T) {
	root := t.TempDir()
	touch(t, root, Class1, "1.wav", "notes.txt", "2.WAV", "3.wav.bak")
	require.NoError(t, os.MkdirAll(filepath.Join(root, string(Class1), "nested.wav"), 0755))

	list, err := NewStore(root, nil).List(Class1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.wav", "2.WAV"}, names(list))
	for _, s := range list {
		assert.Equal(t, Class1, s.Bucket)
		assert.Equal(t, filepath.Join(root, "class1", s.Name), s.Path)
	}
}

func TestListUnknownBucket(t *testing.T) {
	_, err := NewStore(t.TempDir(), nil).List(Bucket("class2"))
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestMostRecentStringOrder(t *testing.T) {
	root := t.TempDir()
	touch(t, root, Classify, "1000.wav", "1001.wav", "999.wav")

	sample, ok, err := NewStore(root, nil).MostRecent(Classify)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "999.wav", sample.Name)
}

func TestMostRecentEmpty(t *testing.T) {
	_, ok, err := NewStore(t.TempDir(), nil).MostRecent(Classify)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	root := t.TempDir()
	touch(t, root, Class0, "a.wav", "b.wav", "c.wav")
	store := NewStore(root, nil)

	before, err := store.List(Class0)
	require.NoError(t, err)
	victim := before[1].Name

	require.NoError(t, store.Delete(Class0, 1))

	after, err := store.List(Class0)
	require.NoError(t, err)
	assert.Len(t, after, 2)
	assert.NotContains(t, names(after), victim)
}

func TestDeleteOutOfRange(t *testing.T) {
	root := t.TempDir()
	touch(t, root, Class0, "a.wav")
	store := NewStore(root, nil)

	assert.ErrorIs(t, store.Delete(Class0, 1), ErrIndexOutOfRange)
	assert.ErrorIs(t, store.Delete(Class0, -1), ErrIndexOutOfRange)
	assert.ErrorIs(t, store.Delete(Class1, 0), ErrIndexOutOfRange)
}

func TestGet(t *testing.T) {
	root := t.TempDir()
	touch(t, root, Class1, "a.wav", "b.wav")
	store := NewStore(root, nil)

	list, err := store.List(Class1)
	require.NoError(t, err)

	got, err := store.Get(Class1, 1)
	require.NoError(t, err)
	assert.Equal(t, list[1], got)

	_, err = store.Get(Class1, 2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestDeleteAll(t *testing.T) {
	root := t.TempDir()
	touch(t, root, Class0, "a.wav")
	touch(t, root, Class1, "b.wav")
	touch(t, root, Classify, "c.wav")
	touch(t, root, Temp, ScratchName)
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0644))

	ctx := context.Background()
	p := prefs.NewMemoryStore()
	require.NoError(t, p.Set(ctx, prefs.LastSavedNetworkKey, "birds"))

	store := NewStore(root, p)
	require.NoError(t, store.DeleteAll(ctx))

	for _, b := range Buckets() {
		list, err := store.List(b)
		require.NoError(t, err)
		assert.Empty(t, list, "bucket %s", b)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, ok, err := p.Get(ctx, prefs.LastSavedNetworkKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAllMissingRoot(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-created"), prefs.NewMemoryStore())
	assert.NoError(t, store.DeleteAll(context.Background()))
}

func TestNewSamplePath(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)
	store.now = func() time.Time { return time.Unix(1700000000, 250000000) }

	sample, err := store.NewSamplePath(Class1)
	require.NoError(t, err)
	assert.Equal(t, "1700000000.250000.wav", sample.Name)
	assert.Equal(t, Class1, sample.Bucket)
	assert.DirExists(t, filepath.Join(root, "class1"))

	_, err = store.NewSamplePath(Bucket("nope"))
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestScratch(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	assert.Equal(t, filepath.Join(root, "temp", "live_classification.wav"), store.ScratchPath())
	assert.Equal(t, Temp, store.Scratch().Bucket)
}

func TestDuration(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)
	sample, err := store.NewSamplePath(Class0)
	require.NoError(t, err)

	require.NoError(t, audio.WriteWAV(sample.Path, make([]byte, 2*audio.SampleRate*5), audio.SampleRate))

	d, err := store.Duration(sample)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}

func TestBucketLabel(t *testing.T) {
	assert.Equal(t, 0, Class0.Label())
	assert.Equal(t, 1, Class1.Label())
	assert.Equal(t, -1, Classify.Label())
	assert.Equal(t, -1, Temp.Label())
}
