package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LevelSentinel/internal/model"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

var at = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestPublishLevels(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "sr.levels", "sr.batches")
	p.now = func() time.Time { return at }

	r := &model.SRResult{ID: "abc", Symbol: model.BTC, Timeframe: model.TF1h, CurrentPrice: 64000}
	require.NoError(t, p.PublishLevels(context.Background(), r))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "sr.levels", msg.Topic)
	assert.Equal(t, "BTC:1h", string(msg.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TypeLevelsCalculated, env.Type)
	assert.True(t, at.Equal(env.OccurredAt))

	var got model.SRResult
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, 64000.0, got.CurrentPrice)
}

func TestPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "sr.levels", "sr.batches")

	s := &model.BatchSummary{RunID: "run-1", Failures: []model.JobFailure{{Symbol: model.BNB, Timeframe: model.TF4h, Kind: model.KindNoData}}}
	require.NoError(t, p.PublishBatch(context.Background(), s))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "sr.batches", w.msgs[0].Topic)
	assert.Equal(t, "run-1", string(w.msgs[0].Key))
}

func TestPublish_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, "sr.levels", "sr.batches")

	err := p.PublishLevels(context.Background(), &model.SRResult{Symbol: model.BTC, Timeframe: model.TF15m})
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaPublisherBoundsWrites(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "sr.levels", "sr.batches")
	defer p.Close()

	w, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, writeTimeout, w.WriteTimeout)
	assert.Equal(t, writeAttempts, w.MaxAttempts)
	tr, ok := w.Transport.(*kafka.Transport)
	require.True(t, ok)
	assert.Equal(t, writeTimeout, tr.DialTimeout)
}

type slowWriter struct{ fakeWriter }

func (s *slowWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPublishGivesUpOnStalledBroker(t *testing.T) {
	p := newKafkaPublisher(&slowWriter{}, "sr.levels", "sr.batches")

	start := time.Now()
	err := p.PublishLevels(context.Background(), &model.SRResult{Symbol: model.BTC, Timeframe: model.TF1h})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), writeAttempts*writeTimeout+time.Second)
}
