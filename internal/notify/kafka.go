package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-validator/internal/config"
	"github.com/sells-group/market-validator/internal/model"
)

// EventSessionCompleted is the type of every event the Publisher emits.
const EventSessionCompleted = "session.completed"

// SessionEvent is the Kafka payload for a finished session.
type SessionEvent struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Date      string               `json:"date"`
	DryRun    bool                 `json:"dry_run"`
	Totals    model.SessionTotals  `json:"totals"`
	Sources   []model.SourceReport `json:"sources"`
	StartedAt time.Time            `json:"started_at"`
	SentAt    time.Time            `json:"sent_at"`
}

// Publisher emits session events on a Kafka topic.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

// NewPublisher connects a synchronous producer to the configured brokers.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, eris.New("notify: no kafka brokers configured")
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V2_8_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, eris.Wrap(err, "notify: create kafka producer")
	}
	return NewPublisherWithProducer(producer, cfg.Topic), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic, now: time.Now}
}

// SessionFinished publishes one session.completed event keyed by session id.
func (p *Publisher) SessionFinished(_ context.Context, snap model.SessionSnapshot) error {
	event := SessionEvent{
		Type:      EventSessionCompleted,
		SessionID: snap.SessionID,
		Date:      snap.Date,
		DryRun:    snap.DryRun,
		Totals:    snap.Totals,
		Sources:   snap.Sources,
		StartedAt: snap.StartedAt,
		SentAt:    p.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "notify: marshal session event")
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(snap.SessionID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return eris.Wrapf(err, "notify: publish to %s", p.topic)
	}

	zap.L().Debug("notify: session event published",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close shuts the producer down.
func (p *Publisher) Close() error {
	return eris.Wrap(p.producer.Close(), "notify: close kafka producer")
}
