package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type stubTimelineRepo struct {
	inserted   []Event
	windowRows []Event
	lastLimit  int
	lastOffset int
	insertErr  error
}

func (s *stubTimelineRepo) Insert(ctx context.Context, event Event) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, event)
	return nil
}

func (s *stubTimelineRepo) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error) {
	s.lastLimit, s.lastOffset = limit, offset
	return s.windowRows, nil
}

func (s *stubTimelineRepo) All(ctx context.Context, filters TimelineFilters) ([]Event, error) {
	return s.inserted, nil
}

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error { return nil }

func TestRecordFillsIdentityAndTimestamp(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo, nil)
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return fixed })

	err := svc.Record(context.Background(), ActorEvent(7, OrderLocked, shared.Actor{ID: 3, Name: "dina"}, nil))
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
	ev := repo.inserted[0]
	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, fixed, ev.Timestamp)
	assert.Equal(t, "dina (#3)", ev.Actor)
	assert.Equal(t, int64(3), ev.ActorID)
}

func TestRecordRejectsIncompleteEvent(t *testing.T) {
	svc := NewService(&stubTimelineRepo{}, nil)
	err := svc.Record(context.Background(), Event{EventType: OrderCreated})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordSwallowsPublisherFailure(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo, nil)
	svc.AddPublisher(NewKafkaPublisherWithWriter(&stubWriter{err: errors.New("broker down")}))

	require.NoError(t, svc.Record(context.Background(), Event{OrderID: 1, EventType: OrderCreated}))
	assert.Len(t, repo.inserted, 1)
}

func TestKafkaPublisherMessageShape(t *testing.T) {
	w := &stubWriter{}
	pub := NewKafkaPublisherWithWriter(w)
	ev := Event{
		ID:        uuid.New(),
		OrderID:   42,
		EventType: OrderUnlocked,
		Actor:     "ops",
		Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Detail:    map[string]any{"reason": "price correction"},
	}
	require.NoError(t, pub.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, OrderUnlocked, string(msg.Headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, OrderUnlocked, env.Type)
	assert.Equal(t, int64(42), env.OrderID)
	assert.Equal(t, "price correction", env.Payload.Detail["reason"])
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{windowRows: []Event{
		{OrderID: 1, EventType: OrderLocked},
		{OrderID: 1, EventType: OrderCompleted},
		{OrderID: 1, EventType: OrderCreated},
	}}
	svc := NewService(repo, nil)

	result, err := svc.Timeline(context.Background(), TimelineFilters{OrderID: 1, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Events, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 3, result.Paging.NextPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 2, repo.lastOffset)
}
