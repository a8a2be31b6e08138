package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/hilltop-site-loader/internal/config"
	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, topic: "hilltop-sites", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rec := domain.Enrich(domain.Site{Name: "Te Marua", Latitude: -41.09, Longitude: 175.12}, domain.Present("Rainfall"))

	msg, err := serializeToMessage(rec, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("Te Marua"), msg.Key)
	assert.JSONEq(t, `{"name":"Te Marua","latitude":-41.09,"longitude":175.12,"measurement_name":"Rainfall","measurement_status":"present"}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "measurement_status", msg.Headers[0].Key)
	assert.Equal(t, []byte("present"), msg.Headers[0].Value)
	assert.Equal(t, "loaded_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_AbsentMeasurement(t *testing.T) {
	rec := domain.Enrich(domain.Site{Name: "B"}, domain.Absent(domain.MeasurementUnreachable))

	msg, err := serializeToMessage(rec, time.Now())
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"B","latitude":0,"longitude":0,"measurement_name":null,"measurement_status":"unreachable"}`, string(msg.Value))
	assert.Equal(t, []byte("unreachable"), msg.Headers[0].Value)
}

func TestPublish(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	w := &fakeWriter{}
	p := testPublisher(w)
	records := []domain.EnrichedRecord{
		domain.Enrich(domain.Site{Name: "A"}, domain.Present("Flow")),
		domain.Enrich(domain.Site{Name: "B"}, domain.Absent(domain.MeasurementNotFound)),
	}

	require.NoError(t, p.Publish(context.Background(), records))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, []byte("A"), w.msgs[0].Key)
	assert.Equal(t, []byte("B"), w.msgs[1].Key)
	assert.Equal(t, []byte("2026-03-02T09:30:00Z"), w.msgs[1].Headers[1].Value)
}

func TestPublish_Empty(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	require.NoError(t, testPublisher(w).Publish(context.Background(), nil))
}

func TestPublish_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	err := testPublisher(w).Publish(context.Background(), []domain.EnrichedRecord{
		domain.Enrich(domain.Site{Name: "A"}, domain.Present("Flow")),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hilltop-sites")
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, slog.Default())
	w, ok := p.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "t", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
	require.NoError(t, p.Close())
}
