package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/EzClassify/internal/live"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func TestFormatTopic(t *testing.T) {
	assert.Equal(t, "ezclassify/live/abc", FormatTopic(DefaultTopic, "abc"))
	assert.Equal(t, "fixed/topic", FormatTopic("fixed/topic", "abc"))
}

func TestPublisherSendsSnapshots(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	result := live.Snapshot{RunID: "run-1", State: live.Interpreting, Display: live.Display{Color: live.Blue, Label: "Classe 1"}}
	p.Update(live.Snapshot{RunID: "run-1", State: live.Recording})
	p.Update(result)

	require.Eventually(t, func() bool { return len(client.sent()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	msgs := client.sent()
	assert.Equal(t, "ezclassify/live/run-1", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.False(t, msgs[0].retained)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[1].payload, &decoded))
	assert.Equal(t, "Interpreting", decoded["state"])
	assert.Equal(t, "run-1", decoded["run_id"])
	display := decoded["display"].(map[string]interface{})
	assert.Equal(t, "blue", display["color"])
	assert.Equal(t, "Classe 1", display["label"])
}

func TestPublisherErrorDoesNotStop(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := NewPublisher(client, "t/{run_id}", nil)

	require.Error(t, p.publish(live.Snapshot{RunID: "x"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	p.Update(live.Snapshot{RunID: "a"})
	p.Update(live.Snapshot{RunID: "b"})
	require.Eventually(t, func() bool { return len(client.sent()) == 3 }, time.Second, time.Millisecond)
}

func TestUpdateDropsWhenFull(t *testing.T) {
	p := NewPublisher(&fakeClient{}, "", nil)

	for i := 0; i < queueSize+10; i++ {
		p.Update(live.Snapshot{Cycle: i})
	}
	assert.Len(t, p.queue, queueSize)
}
