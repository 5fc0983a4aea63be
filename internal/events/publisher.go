package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/metrics"
	"LevelSentinel/internal/model"
)

// Event types.
const (
	TypeLevelsCalculated = "levels.calculated"
	TypeBatchCompleted   = "batch.completed"
)

// Envelope wraps every published payload.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher announces new results and finished batches.
type Publisher interface {
	PublishLevels(ctx context.Context, r *model.SRResult) error
	PublishBatch(ctx context.Context, s *model.BatchSummary) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) PublishLevels(context.Context, *model.SRResult) error    { return nil }
func (Noop) PublishBatch(context.Context, *model.BatchSummary) error { return nil }
func (Noop) Close() error                                            { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON envelopes keyed by pair or run ID.
type KafkaPublisher struct {
	w           messageWriter
	levelsTopic string
	batchTopic  string
	log         *logger.Logger
	now         func() time.Time
}

// Writer limits. A publish against an unreachable broker gives up after
// roughly writeAttempts * writeTimeout.
const (
	writeTimeout  = 2 * time.Second
	writeAttempts = 2
)

// NewKafkaPublisher creates a synchronous publisher. Topics are set per message.
func NewKafkaPublisher(brokers []string, levelsTopic, batchTopic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: writeTimeout,
		ReadTimeout:  writeTimeout,
		MaxAttempts:  writeAttempts,
		Transport:    &kafka.Transport{DialTimeout: writeTimeout},
	}
	return newKafkaPublisher(w, levelsTopic, batchTopic)
}

func newKafkaPublisher(w messageWriter, levelsTopic, batchTopic string) *KafkaPublisher {
	return &KafkaPublisher{
		w:           w,
		levelsTopic: levelsTopic,
		batchTopic:  batchTopic,
		log:         logger.Get().With("component", "kafka_publisher"),
		now:         time.Now,
	}
}

func (p *KafkaPublisher) PublishLevels(ctx context.Context, r *model.SRResult) error {
	key := fmt.Sprintf("%s:%s", r.Symbol, r.Timeframe)
	return p.publish(ctx, p.levelsTopic, key, TypeLevelsCalculated, r)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, s *model.BatchSummary) error {
	return p.publish(ctx, p.batchTopic, s.RunID, TypeBatchCompleted, s)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key, typ string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, writeAttempts*writeTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	data, err := json.Marshal(Envelope{Type: typ, OccurredAt: p.now().UTC(), Payload: body})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: data})
	metrics.RecordPublish(err)
	if err != nil {
		p.log.Errorw("publish failed", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.Debugw("published", "topic", topic, "key", key)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
