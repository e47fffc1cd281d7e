package training

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/prefs"
	"github.com/yok-tottii/EzClassify/internal/samples"
)

type fakeClient struct {
	initReply  string
	saveReply  string
	trainReply string
	err        error
	batches    []classifier.Batch
}

func (c *fakeClient) InitNetwork(ctx context.Context, name string) (string, error) {
	if name == "" {
		return classifier.EmptyNameMessage, classifier.ErrEmptyNetworkName
	}
	return c.initReply, c.err
}

func (c *fakeClient) SaveNetwork(ctx context.Context) (string, error) {
	return c.saveReply, c.err
}

func (c *fakeClient) TrainNetwork(ctx context.Context, batch classifier.Batch) (string, error) {
	c.batches = append(c.batches, batch)
	return c.trainReply, c.err
}

func seed(t *testing.T, root string, bucket samples.Bucket, names ...string) {
	t.Helper()
	dir := filepath.Join(root, string(bucket))
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("RIFF"), 0644))
	}
}

func setup(t *testing.T, client *fakeClient) (*Orchestrator, *samples.Store, prefs.Store) {
	t.Helper()
	root := t.TempDir()
	seed(t, root, samples.Class0, "1.wav", "2.wav")
	seed(t, root, samples.Class1, "3.wav")
	seed(t, root, samples.Classify, "4.wav")

	p := prefs.NewMemoryStore()
	store := samples.NewStore(root, p)
	return New(client, store, p, nil), store, p
}

func total(t *testing.T, store *samples.Store) int {
	t.Helper()
	n := 0
	for _, b := range samples.Buckets() {
		list, err := store.List(b)
		require.NoError(t, err)
		n += len(list)
	}
	return n
}

func TestTrainAllBatchOrder(t *testing.T) {
	client := &fakeClient{trainReply: classifier.TrainingSuccessMessage}
	o, _, _ := setup(t, client)

	_, err := o.TrainAll(context.Background())
	require.NoError(t, err)

	require.Len(t, client.batches, 1)
	batch := client.batches[0]
	require.Len(t, batch.Samples, 3)
	assert.Equal(t, []int{0, 0, 1}, batch.Labels)
	assert.Equal(t, samples.Class0, batch.Samples[0].Bucket)
	assert.Equal(t, samples.Class0, batch.Samples[1].Bucket)
	assert.Equal(t, samples.Class1, batch.Samples[2].Bucket)
}

func TestTrainAllPurgesOnlyOnExactSuccess(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		err    error
		purged bool
	}{
		{"exact phrase", "Treinamento concluído com sucesso!", nil, true},
		{"near miss", "Treinamento concluído com sucesso", nil, false},
		{"empty", "", nil, false},
		{"server error text", "Erro: rede não inicializada", nil, false},
		{"transport failure", "Error: connection refused", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			client := &fakeClient{trainReply: tt.reply, err: tt.err}
			o, store, p := setup(t, client)
			require.NoError(t, p.Set(ctx, prefs.LastSavedNetworkKey, "birds"))

			reply, err := o.TrainAll(ctx)
			assert.Equal(t, tt.reply, reply)
			if tt.err != nil {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			_, saved, perr := p.Get(ctx, prefs.LastSavedNetworkKey)
			require.NoError(t, perr)

			if tt.purged {
				assert.Zero(t, total(t, store))
				assert.False(t, saved)
			} else {
				assert.Equal(t, 4, total(t, store))
				assert.True(t, saved)
			}
		})
	}
}

func TestTrainAllNoSamples(t *testing.T) {
	client := &fakeClient{}
	o := New(client, samples.NewStore(t.TempDir(), nil), nil, nil)

	_, err := o.TrainAll(context.Background())
	assert.ErrorIs(t, err, ErrNoSamples)
	assert.Empty(t, client.batches)
}

func TestInitAndSaveNetwork(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		initReply: "Rede neural birds inicializada",
		saveReply: "Rede neural birds salva com sucesso!",
	}
	o, _, _ := setup(t, client)

	_, err := o.InitNetwork(ctx, "birds")
	require.NoError(t, err)
	assert.Equal(t, "birds", o.CurrentNetwork())

	reply, saved, err := o.SaveNetwork(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, client.saveReply, reply)

	name, ok, err := o.LastSavedNetwork(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "birds", name)
}

func TestSaveNetworkNotConfirmed(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{initReply: "ok", saveReply: "Nenhuma rede para salvar"}
	o, _, _ := setup(t, client)

	_, err := o.InitNetwork(ctx, "birds")
	require.NoError(t, err)
	_, saved, err := o.SaveNetwork(ctx)
	require.NoError(t, err)
	assert.False(t, saved)

	_, ok, err := o.LastSavedNetwork(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveNetworkFromPreviousSession(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{saveReply: "Rede neural birds salva com sucesso!"}
	o, _, p := setup(t, client)
	require.NoError(t, p.Set(ctx, prefs.LastSavedNetworkKey, "birds"))

	// nothing initialized here, so the name comes from the last save
	assert.Empty(t, o.CurrentNetwork())
	_, saved, err := o.SaveNetwork(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
}

func TestInitNetworkEmptyName(t *testing.T) {
	o, _, _ := setup(t, &fakeClient{})

	reply, err := o.InitNetwork(context.Background(), "")
	assert.ErrorIs(t, err, classifier.ErrEmptyNetworkName)
	assert.Equal(t, "O nome da rede neural não pode estar vazio.", reply)
	assert.Empty(t, o.CurrentNetwork())
}
