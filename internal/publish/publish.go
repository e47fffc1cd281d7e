package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/yok-tottii/EzClassify/internal/live"
	"github.com/yok-tottii/EzClassify/internal/logger"
)

// DefaultTopic is used when no topic is configured
const DefaultTopic = "ezclassify/live/{run_id}"

const (
	qos            = 1
	publishTimeout = 5 * time.Second
	queueSize      = 32
)

// Client is the part of mqtt.Client the publisher needs
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher is a live.Observer that forwards snapshots to MQTT. Update never
// blocks the loop; snapshots are queued and sent by Start.
type Publisher struct {
	client Client
	topic  string
	queue  chan live.Snapshot
	log    *logger.Logger
}

// NewPublisher creates a publisher for topic. The {run_id} placeholder is
// replaced with each snapshot's run ID.
func NewPublisher(client Client, topic string, log *logger.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		client: client,
		topic:  topic,
		queue:  make(chan live.Snapshot, queueSize),
		log:    log,
	}
}

// Update queues snap for publishing, dropping it if the queue is full
func (p *Publisher) Update(snap live.Snapshot) {
	select {
	case p.queue <- snap:
	default:
		p.log.Warn("MQTT queue full, dropping %s snapshot for run %s", snap.State, snap.RunID)
	}
}

// Start publishes queued snapshots until ctx is cancelled
func (p *Publisher) Start(ctx context.Context) error {
	p.log.Info("MQTT publisher started on %s", p.topic)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("MQTT publisher stopped")
			return nil
		case snap := <-p.queue:
			if err := p.publish(snap); err != nil {
				p.log.Error("Failed to publish snapshot: %v", err)
			}
		}
	}
}

func (p *Publisher) publish(snap live.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	topic := FormatTopic(p.topic, snap.RunID)
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.log.Debug("Published %s snapshot to %s", snap.State, topic)
	return nil
}

// FormatTopic replaces the {run_id} placeholder
func FormatTopic(pattern, runID string) string {
	return strings.ReplaceAll(pattern, "{run_id}", runID)
}
