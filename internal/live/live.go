// Package live runs the record, upload, interpret cycle that classifies the
// microphone continuously.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/logger"
	"github.com/yok-tottii/EzClassify/internal/recording"
	"github.com/yok-tottii/EzClassify/internal/samples"
)

// ErrRunning is returned by Start while a run is active
var ErrRunning = errors.New("live: already running")

// State is the loop's position in the cycle
type State int

const (
	Idle State = iota
	Recording
	Uploading
	Interpreting
	Stopped
	Failed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Uploading:
		return "Uploading"
	case Interpreting:
		return "Interpreting"
	case Stopped:
		return "Stopped"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a run is in progress in this state
func (s State) Active() bool {
	return s == Recording || s == Uploading || s == Interpreting
}

// Snapshot is an immutable view of the loop
type Snapshot struct {
	RunID     string             `json:"run_id,omitempty"`
	State     State              `json:"state"`
	Cycle     int                `json:"cycle"`
	Display   Display            `json:"display"`
	Result    *classifier.Result `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Observer receives every snapshot in order. Update is called synchronously
// from the loop and must not call Start or Stop.
type Observer interface {
	Update(Snapshot)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Update(s Snapshot) { f(s) }

// Classifier classifies one sample
type Classifier interface {
	Classify(ctx context.Context, sample samples.Sample) (classifier.Result, error)
}

// Config holds loop configuration
type Config struct {
	CycleDuration       time.Duration
	ConfidenceThreshold float64
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		CycleDuration:       3 * time.Second,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Loop is the live classification state machine. At most one capture and
// one upload are in flight at any time.
type Loop struct {
	recorder   recording.Recorder
	classifier Classifier
	scratch    samples.Sample
	config     Config
	log        *logger.Logger

	// notifyMu serializes state changes with their delivery so observers
	// never see snapshots out of order
	notifyMu sync.Mutex

	mu         sync.Mutex
	observers  []Observer
	snapshot   Snapshot
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a loop that captures into scratch
func New(rec recording.Recorder, cl Classifier, scratch samples.Sample, config Config, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.Nop()
	}
	if config.CycleDuration <= 0 {
		config.CycleDuration = DefaultConfig().CycleDuration
	}
	if config.ConfidenceThreshold <= 0 {
		config.ConfidenceThreshold = DefaultConfidenceThreshold
	}

	return &Loop{
		recorder:   rec,
		classifier: cl,
		scratch:    scratch,
		config:     config,
		log:        log,
		snapshot: Snapshot{
			State:     Idle,
			Display:   InitialDisplay(),
			UpdatedAt: time.Now(),
		},
	}
}

// AddObserver registers o for future snapshots
func (l *Loop) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Snapshot returns the current state
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}

// Running reports whether a run is active
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Start begins a new run. ctx bounds the whole run, not just the call.
func (l *Loop) Start(ctx context.Context) (string, error) {
	// the previous run must release the recorder before a new capture starts
	l.Wait()

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return "", ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.generation++
	gen := l.generation
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done

	runID := uuid.NewString()
	l.snapshot = Snapshot{
		RunID:     runID,
		State:     Recording,
		Cycle:     1,
		Display:   InitialDisplay(),
		UpdatedAt: time.Now(),
	}
	snap, observers := l.snapshot, l.observers
	l.mu.Unlock()

	l.log.Info("Live run %s started (cycle %v)", runID, l.config.CycleDuration)
	notify(observers, snap)

	go func() {
		defer close(done)
		l.run(runCtx, gen)
		// the parent context ended the run without Stop being called
		l.update(gen, func(s *Snapshot) { s.State = Stopped })
	}()

	return runID, nil
}

// Stop ends the active run and returns once its capture has been halted. An
// upload in flight is cancelled; its result, if it still arrives, is discarded.
// Stop must not be called from an Observer.
func (l *Loop) Stop() {
	l.notifyMu.Lock()

	l.mu.Lock()
	l.generation++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.snapshot.State = Stopped
	l.snapshot.UpdatedAt = time.Now()
	snap, observers := l.snapshot, l.observers
	l.mu.Unlock()

	l.log.Info("Live run %s stopped", snap.RunID)
	notify(observers, snap)
	l.notifyMu.Unlock()

	// the capture in flight is halted once the run goroutine has exited
	l.Wait()
}

// Toggle starts an idle loop or stops a running one
func (l *Loop) Toggle(ctx context.Context) error {
	if l.Running() {
		l.Stop()
		return nil
	}
	_, err := l.Start(ctx)
	return err
}

// Wait blocks until the current run's goroutine has exited
func (l *Loop) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done != nil {
		<-done
	}
}

func notify(observers []Observer, snap Snapshot) {
	for _, o := range observers {
		o.Update(snap)
	}
}

// update applies mutate if gen is still current and fans the result out.
// It returns false when the run has been superseded.
func (l *Loop) update(gen uint64, mutate func(s *Snapshot)) bool {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return false
	}
	mutate(&l.snapshot)
	l.snapshot.UpdatedAt = time.Now()
	snap, observers := l.snapshot, l.observers
	if !snap.State.Active() {
		// terminal: release the run
		l.generation++
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
	}
	l.mu.Unlock()

	notify(observers, snap)
	return true
}

func (l *Loop) run(ctx context.Context, gen uint64) {
	for cycle := 1; ; cycle++ {
		if cycle > 1 {
			next := cycle
			if !l.update(gen, func(s *Snapshot) {
				s.State = Recording
				s.Cycle = next
			}) {
				return
			}
		}

		if err := l.recorder.Record(ctx, l.scratch.Path, l.config.CycleDuration); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Error("Live capture failed: %v", err)
			l.update(gen, func(s *Snapshot) {
				s.State = Failed
				s.Error = RecordingFailureMessage(err)
				s.Display = Display{Color: White, Label: s.Error}
			})
			return
		}

		if !l.update(gen, func(s *Snapshot) { s.State = Uploading }) {
			return
		}

		result, err := l.classifier.Classify(ctx, l.scratch)
		if ctx.Err() != nil {
			l.log.Debug("Discarding classification from cancelled run")
			return
		}

		if err != nil {
			l.log.Error("Live classification failed: %v", err)
			l.update(gen, func(s *Snapshot) {
				s.State = Failed
				s.Result = nil
				s.Error = FailureMessage(err)
				s.Display = Display{Color: White, Label: s.Error}
			})
			return
		}

		display := Render(result, l.config.ConfidenceThreshold)
		if !l.update(gen, func(s *Snapshot) {
			s.State = Interpreting
			s.Result = &result
			s.Error = ""
			s.Display = display
		}) {
			return
		}
	}
}
