package live

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/EzClassify/internal/audio"
	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/recording"
	"github.com/yok-tottii/EzClassify/internal/samples"
)

// fakeRecorder returns after the requested duration or cancellation and
// tracks how many captures overlap
type fakeRecorder struct {
	mu        sync.Mutex
	active    int
	maxActive int
	starts    int
	stops     int
	err       error
	started   chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{started: make(chan struct{}, 100)}
}

func (r *fakeRecorder) Record(ctx context.Context, path string, d time.Duration) error {
	r.mu.Lock()
	r.starts++
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	err := r.err
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.stops++
		r.mu.Unlock()
	}()

	select {
	case r.started <- struct{}{}:
	default:
	}
	if err != nil {
		return err
	}

	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRecorder) counts() (starts, stops, maxActive int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.maxActive
}

// fakeClassifier replays results and optionally blocks until released
type fakeClassifier struct {
	mu      sync.Mutex
	calls   int
	results []classifier.Result
	err     error
	block   chan struct{}
	called  chan struct{}
}

func (c *fakeClassifier) Classify(ctx context.Context, sample samples.Sample) (classifier.Result, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	if c.called != nil {
		c.called <- struct{}{}
	}
	if c.block != nil {
		// the result arrives even if ctx is cancelled, like a late reply
		<-c.block
	}
	if c.err != nil {
		return classifier.Result{}, c.err
	}
	return c.results[(n-1)%len(c.results)], nil
}

func (c *fakeClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (o *recordingObserver) Update(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snaps = append(o.snaps, s)
}

func (o *recordingObserver) all() []Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Snapshot(nil), o.snaps...)
}

func (o *recordingObserver) last() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snaps[len(o.snaps)-1]
}

var scratch = samples.Sample{Name: samples.ScratchName, Bucket: samples.Temp, Path: "/tmp/unused.wav"}

func newLoop(rec *fakeRecorder, cl *fakeClassifier) (*Loop, *recordingObserver) {
	loop := New(rec, cl, scratch, Config{CycleDuration: 5 * time.Millisecond, ConfidenceThreshold: 0.8}, nil)
	obs := &recordingObserver{}
	loop.AddObserver(obs)
	return loop, obs
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Idle", Idle.String())
	assert.Equal(t, "Recording", Recording.String())
	assert.Equal(t, "Uploading", Uploading.String())
	assert.Equal(t, "Interpreting", Interpreting.String())
	assert.Equal(t, "Stopped", Stopped.String())
	assert.Equal(t, "Failed", Failed.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestInitialSnapshot(t *testing.T) {
	loop, _ := newLoop(newFakeRecorder(), &fakeClassifier{})

	snap := loop.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, Display{Color: White, Label: "Categoria"}, snap.Display)
	assert.False(t, loop.Running())
}

func TestCyclesUntilStopped(t *testing.T) {
	rec := newFakeRecorder()
	cl := &fakeClassifier{results: []classifier.Result{
		{Class: 1, Confidence: 0.95},
		{Class: 0, Confidence: 0.4},
	}}
	loop, obs := newLoop(rec, cl)

	runID, err := loop.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	require.Eventually(t, func() bool { return cl.callCount() >= 3 }, 2*time.Second, time.Millisecond)
	loop.Stop()
	loop.Wait()

	starts, stops, maxActive := rec.counts()
	assert.Equal(t, starts, stops, "every capture must be stopped")
	assert.Equal(t, 1, maxActive, "captures must never overlap")

	var verdicts []Display
	for _, s := range obs.all() {
		assert.Equal(t, runID, s.RunID)
		if s.State == Interpreting {
			verdicts = append(verdicts, s.Display)
		}
	}
	require.GreaterOrEqual(t, len(verdicts), 2)
	assert.Equal(t, Display{Color: Blue, Label: "Classe 1"}, verdicts[0])
	assert.Equal(t, Display{Color: White, Label: "Classe 0 com 40% de confiança"}, verdicts[1])

	assert.Equal(t, Stopped, obs.last().State)
	assert.False(t, loop.Running())
}

func TestStateSequence(t *testing.T) {
	rec := newFakeRecorder()
	cl := &fakeClassifier{results: []classifier.Result{{Class: 0, Confidence: 0.9}}}
	loop, obs := newLoop(rec, cl)

	_, err := loop.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return cl.callCount() >= 2 }, 2*time.Second, time.Millisecond)
	loop.Stop()
	loop.Wait()

	snaps := obs.all()
	want := []State{Recording, Uploading, Interpreting, Recording, Uploading}
	require.GreaterOrEqual(t, len(snaps), len(want))
	for i, state := range want {
		assert.Equal(t, state, snaps[i].State, "snapshot %d", i)
	}
	assert.Equal(t, 1, snaps[0].Cycle)
	assert.Equal(t, 2, snaps[3].Cycle)
}

func TestStopDuringRecordingSkipsUpload(t *testing.T) {
	rec := newFakeRecorder()
	cl := &fakeClassifier{results: []classifier.Result{{Class: 0, Confidence: 1}}}
	loop := New(rec, cl, scratch, Config{CycleDuration: time.Minute}, nil)

	_, err := loop.Start(context.Background())
	require.NoError(t, err)
	<-rec.started

	loop.Stop()
	loop.Wait()

	assert.Zero(t, cl.callCount(), "a stopped capture must not be uploaded")
	starts, stops, _ := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, Stopped, loop.Snapshot().State)
}

func TestLateResultDiscarded(t *testing.T) {
	rec := newFakeRecorder()
	cl := &fakeClassifier{
		results: []classifier.Result{{Class: 1, Confidence: 0.99}},
		block:   make(chan struct{}),
		called:  make(chan struct{}, 1),
	}
	loop, obs := newLoop(rec, cl)

	// the reply lands only after Stop has cancelled the run
	var release sync.Once
	loop.AddObserver(ObserverFunc(func(s Snapshot) {
		if s.State == Stopped {
			release.Do(func() { close(cl.block) })
		}
	}))

	_, err := loop.Start(context.Background())
	require.NoError(t, err)
	<-cl.called

	loop.Stop()

	for _, s := range obs.all() {
		assert.NotEqual(t, Interpreting, s.State, "late result must not be applied")
	}
	snap := loop.Snapshot()
	assert.Equal(t, Stopped, snap.State)
	assert.Nil(t, snap.Result)
	assert.Equal(t, InitialDisplay(), snap.Display)
}

func TestClassificationFailure(t *testing.T) {
	rec := newFakeRecorder()
	cl := &fakeClassifier{err: errors.New("boom")}
	loop, obs := newLoop(rec, cl)

	_, err := loop.Start(context.Background())
	require.NoError(t, err)
	loop.Wait()

	snap := loop.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "Erro na classificação: boom", snap.Error)
	assert.Equal(t, 1, cl.callCount(), "no retry after failure")
	assert.False(t, loop.Running())
	assert.Equal(t, Failed, obs.last().State)

	starts, stops, _ := rec.counts()
	assert.Equal(t, starts, stops)
}

func TestRecordingFailure(t *testing.T) {
	rec := newFakeRecorder()
	rec.err = errors.New("no microphone")
	cl := &fakeClassifier{}
	loop, _ := newLoop(rec, cl)

	_, err := loop.Start(context.Background())
	require.NoError(t, err)
	loop.Wait()

	snap := loop.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Contains(t, snap.Error, "no microphone")
	assert.Zero(t, cl.callCount())
}

func TestStartWhileRunning(t *testing.T) {
	rec := newFakeRecorder()
	loop := New(rec, &fakeClassifier{}, scratch, Config{CycleDuration: time.Minute}, nil)

	_, err := loop.Start(context.Background())
	require.NoError(t, err)
	defer func() {
		loop.Stop()
		loop.Wait()
	}()

	_, err = loop.Start(context.Background())
	assert.ErrorIs(t, err, ErrRunning)
}

func TestRestartAfterFailure(t *testing.T) {
	rec := newFakeRecorder()
	cl := &fakeClassifier{err: errors.New("boom")}
	loop, _ := newLoop(rec, cl)

	first, err := loop.Start(context.Background())
	require.NoError(t, err)
	loop.Wait()

	second, err := loop.Start(context.Background())
	require.NoError(t, err)
	loop.Wait()

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, cl.callCount())
}

func TestToggle(t *testing.T) {
	rec := newFakeRecorder()
	loop := New(rec, &fakeClassifier{}, scratch, Config{CycleDuration: time.Minute}, nil)

	require.NoError(t, loop.Toggle(context.Background()))
	assert.True(t, loop.Running())

	require.NoError(t, loop.Toggle(context.Background()))
	loop.Wait()
	assert.False(t, loop.Running())
	assert.Equal(t, Stopped, loop.Snapshot().State)
}

func TestParentContextCancelStopsRun(t *testing.T) {
	rec := newFakeRecorder()
	cl := &fakeClassifier{}
	loop := New(rec, cl, scratch, Config{CycleDuration: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := loop.Start(ctx)
	require.NoError(t, err)
	<-rec.started

	cancel()
	loop.Wait()
	assert.Zero(t, cl.callCount())
	assert.False(t, loop.Running())
	assert.Equal(t, Stopped, loop.Snapshot().State)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		result classifier.Result
		want   Display
	}{
		{"strong class 0", classifier.Result{Class: 0, Confidence: 0.8}, Display{Green, "Classe 0"}},
		{"strong class 1", classifier.Result{Class: 1, Confidence: 0.95}, Display{Blue, "Classe 1"}},
		{"strong other class", classifier.Result{Class: 4, Confidence: 0.99}, Display{Orange, "Classe 4"}},
		{"weak class 0", classifier.Result{Class: 0, Confidence: 0.4}, Display{White, "Classe 0 com 40% de confiança"}},
		{"weak truncates", classifier.Result{Class: 1, Confidence: 0.799}, Display{White, "Classe 1 com 79% de confiança"}},
		{"zero confidence", classifier.Result{Class: 1, Confidence: 0}, Display{White, "Classe 1 com 0% de confiança"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.result, DefaultConfidenceThreshold))
		})
	}
}

// slowDriver is an audio driver whose StopRecording takes a while, like
// PortAudio draining its callback
type slowDriver struct {
	mu        sync.Mutex
	recording bool
	stopDelay time.Duration
}

func (d *slowDriver) ListDevices() ([]audio.Device, error) { return nil, nil }
func (d *slowDriver) Initialize(audio.Config) error        { return nil }
func (d *slowDriver) Close() error                         { return nil }

func (d *slowDriver) StartRecording() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording {
		return errors.New("already recording")
	}
	d.recording = true
	return nil
}

func (d *slowDriver) StopRecording() ([]byte, error) {
	time.Sleep(d.stopDelay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording = false
	return make([]byte, 441*2), nil
}

func (d *slowDriver) IsRecording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}

func TestStopThenStartReusesRecorder(t *testing.T) {
	rec := recording.New(&slowDriver{stopDelay: 50 * time.Millisecond}, recording.DefaultConfig(), nil)
	cl := &fakeClassifier{results: []classifier.Result{{Class: 0, Confidence: 0.9}}}
	sample := samples.Sample{
		Name:   samples.ScratchName,
		Bucket: samples.Temp,
		Path:   filepath.Join(t.TempDir(), samples.ScratchName),
	}
	loop := New(rec, cl, sample, Config{CycleDuration: time.Second, ConfidenceThreshold: 0.8}, nil)

	_, err := loop.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.GetState() == recording.Recording }, time.Second, time.Millisecond)

	loop.Stop()
	assert.Equal(t, recording.Idle, rec.GetState(), "Stop returns after the capture is halted")

	_, err = loop.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.GetState() == recording.Recording }, time.Second, time.Millisecond)

	snap := loop.Snapshot()
	assert.Equal(t, Recording, snap.State)
	assert.Empty(t, snap.Error)

	loop.Stop()
	assert.Equal(t, Stopped, loop.Snapshot().State)
}

func TestToggleTwiceRestarts(t *testing.T) {
	rec := recording.New(&slowDriver{stopDelay: 50 * time.Millisecond}, recording.DefaultConfig(), nil)
	cl := &fakeClassifier{results: []classifier.Result{{Class: 1, Confidence: 0.9}}}
	sample := samples.Sample{Name: samples.ScratchName, Bucket: samples.Temp, Path: filepath.Join(t.TempDir(), samples.ScratchName)}
	loop := New(rec, cl, sample, Config{CycleDuration: time.Second, ConfidenceThreshold: 0.8}, nil)

	require.NoError(t, loop.Toggle(context.Background()))
	require.Eventually(t, func() bool { return rec.GetState() == recording.Recording }, time.Second, time.Millisecond)

	require.NoError(t, loop.Toggle(context.Background()))
	require.NoError(t, loop.Toggle(context.Background()))

	assert.True(t, loop.Running())
	assert.NotEqual(t, Failed, loop.Snapshot().State)

	loop.Stop()
}
