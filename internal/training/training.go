// Package training assembles labeled batches and manages the lifecycle of
// the network on the classification server.
package training

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/logger"
	"github.com/yok-tottii/EzClassify/internal/prefs"
	"github.com/yok-tottii/EzClassify/internal/samples"
)

// ErrNoSamples is returned by TrainAll when both labeled buckets are empty
var ErrNoSamples = errors.New("training: no labeled samples")

// Client is the subset of the classification service used for training
type Client interface {
	InitNetwork(ctx context.Context, name string) (string, error)
	SaveNetwork(ctx context.Context) (string, error)
	TrainNetwork(ctx context.Context, batch classifier.Batch) (string, error)
}

// Orchestrator coordinates the sample store, the server and preferences
type Orchestrator struct {
	client Client
	store  *samples.Store
	prefs  prefs.Store
	log    *logger.Logger

	mu      sync.Mutex
	current string
}

// New creates a new orchestrator
func New(client Client, store *samples.Store, p prefs.Store, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{client: client, store: store, prefs: p, log: log}
}

// Batch collects class0 then class1 samples with labels 0 and 1
func (o *Orchestrator) Batch() (classifier.Batch, error) {
	var batch classifier.Batch
	for _, bucket := range []samples.Bucket{samples.Class0, samples.Class1} {
		list, err := o.store.List(bucket)
		if err != nil {
			return classifier.Batch{}, err
		}
		for _, s := range list {
			batch.Samples = append(batch.Samples, s)
			batch.Labels = append(batch.Labels, bucket.Label())
		}
	}
	return batch, nil
}

// TrainAll uploads every labeled sample in one request. The store is purged
// only when the server answers with the exact success phrase.
func (o *Orchestrator) TrainAll(ctx context.Context) (string, error) {
	batch, err := o.Batch()
	if err != nil {
		return "", err
	}
	if len(batch.Samples) == 0 {
		return "", ErrNoSamples
	}

	o.log.Info("Training on %d samples", len(batch.Samples))

	reply, err := o.client.TrainNetwork(ctx, batch)
	if err != nil {
		return reply, err
	}

	if !classifier.IsTrainingSuccess(reply) {
		o.log.Warn("Training did not succeed, keeping samples: %s", reply)
		return reply, nil
	}

	if err := o.store.DeleteAll(ctx); err != nil {
		return reply, fmt.Errorf("training succeeded but samples could not be purged: %w", err)
	}

	o.log.Info("Training succeeded, sample store purged")
	return reply, nil
}

// InitNetwork creates a network on the server and makes it current
func (o *Orchestrator) InitNetwork(ctx context.Context, name string) (string, error) {
	reply, err := o.client.InitNetwork(ctx, name)
	if err != nil {
		return reply, err
	}

	o.mu.Lock()
	o.current = name
	o.mu.Unlock()

	o.log.Info("Network %s initialized: %s", name, reply)
	return reply, nil
}

// CurrentNetwork returns the name passed to the last successful InitNetwork
func (o *Orchestrator) CurrentNetwork() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// SaveNetwork asks the server to save the current network. saved reports
// whether the reply confirmed the save, in which case the name is remembered
// as the last saved network.
func (o *Orchestrator) SaveNetwork(ctx context.Context) (reply string, saved bool, err error) {
	reply, err = o.client.SaveNetwork(ctx)
	if err != nil {
		return reply, false, err
	}

	name := o.CurrentNetwork()
	if name == "" {
		// a network initialized by another session; only the server knows its name
		name, _, _ = o.LastSavedNetwork(ctx)
	}
	if name == "" || !classifier.IsSaveSuccess(reply, name) {
		return reply, false, nil
	}

	if o.prefs != nil {
		if err := o.prefs.Set(ctx, prefs.LastSavedNetworkKey, name); err != nil {
			return reply, true, err
		}
	}
	o.log.Info("Network %s saved", name)
	return reply, true, nil
}

// LastSavedNetwork returns the name of the most recently saved network
func (o *Orchestrator) LastSavedNetwork(ctx context.Context) (string, bool, error) {
	if o.prefs == nil {
		return "", false, nil
	}
	return o.prefs.Get(ctx, prefs.LastSavedNetworkKey)
}
