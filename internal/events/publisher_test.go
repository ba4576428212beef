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

	"github.com/vesto-app/tenk/internal/model"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &mockWriter{}
	p := NewPublisherWithWriter(w, DefaultTopic)

	rec := model.NewEntityRecord(model.Entity{Symbol: "JPM", FilingURL: "https://www.sec.gov/jpm.htm"}, time.Now())
	rec.Add(model.DefaultCatalog()[0], model.Empty{Length: 10})
	rec.Finalize(1)

	require.NoError(t, p.Publish(context.Background(), rec))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "JPM", string(msg.Key))
	assert.Equal(t, "failed", string(msg.Headers[0].Value))

	var got struct {
		Type   string             `json:"type"`
		Record model.EntityRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "tenk.record", got.Type)
	assert.Equal(t, "JPM", got.Record.Symbol)
	assert.Equal(t, 1, got.Record.Attempted)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublish_WriterError(t *testing.T) {
	p := NewPublisherWithWriter(&mockWriter{err: errors.New("leader not available")}, "t")
	rec := model.NewEntityRecord(model.Entity{Symbol: "V"}, time.Now())

	err := p.Publish(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewPublisher(Config{})
	require.Error(t, err)

	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, p.topic)
	require.NoError(t, p.Close())
}
