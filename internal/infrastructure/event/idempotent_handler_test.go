package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/cache"
	"github.com/pharmaerp/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Unmark(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	defer store.Close()

	inner := testutil.NewMockEventHandler("TestEvent")
	h := NewIdempotentHandler(inner, store, zap.NewNop())
	assert.Equal(t, []string{"TestEvent"}, h.EventTypes())

	ev := testutil.NewTestEvent("TestEvent", uuid.New())
	require.NoError(t, h.Handle(ctx, ev))
	require.NoError(t, h.Handle(ctx, ev))

	assert.Equal(t, 1, inner.HandledCount())
	stats := h.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Duplicate)
}

func TestIdempotentHandler_KeysAreScopedPerHandler(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	defer store.Close()

	first := NewIdempotentHandler(testutil.NewMockEventHandler("TestEvent"), store, zap.NewNop())
	second := NewIdempotentHandler(panickingHandler{}, store, zap.NewNop())

	ev := testutil.NewTestEvent("TestEvent", uuid.New())
	assert.NotEqual(t, first.key(ev), second.key(ev))
}

func TestIdempotentHandler_ReleasesKeyOnFailure(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	defer store.Close()

	inner := testutil.NewMockEventHandler("TestEvent")
	inner.SetError(assert.AnError)
	h := NewIdempotentHandler(inner, store, zap.NewNop())

	ev := testutil.NewTestEvent("TestEvent", uuid.New())
	assert.ErrorIs(t, h.Handle(ctx, ev), assert.AnError)

	inner.SetError(nil)
	require.NoError(t, h.Handle(ctx, ev))
	assert.Equal(t, 2, inner.HandledCount())
	assert.Equal(t, int64(1), h.Stats().Failed)
}

func TestIdempotentHandler_StoreErrors(t *testing.T) {
	ctx := context.Background()
	ev := testutil.NewTestEvent("TestEvent", uuid.New())

	t.Run("processes anyway when the store is down", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		store.On("MarkProcessed", mock.Anything, mock.Anything, 24*time.Hour).
			Return(false, errors.New("redis down"))

		core, logs := observer.New(zap.WarnLevel)
		inner := testutil.NewMockEventHandler("TestEvent")
		h := NewIdempotentHandler(inner, store, zap.New(core))

		require.NoError(t, h.Handle(ctx, ev))
		assert.Equal(t, 1, inner.HandledCount())
		assert.Equal(t, 1, logs.FilterMessage("failed to check idempotency, processing anyway").Len())
		store.AssertExpectations(t)
	})

	t.Run("unmark failure still returns the handler error", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		store.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		store.On("Unmark", mock.Anything, mock.Anything).Return(errors.New("redis down"))

		inner := testutil.NewMockEventHandler("TestEvent")
		inner.SetError(assert.AnError)
		h := NewIdempotentHandler(inner, store, zap.NewNop())

		assert.ErrorIs(t, h.Handle(ctx, ev), assert.AnError)
		store.AssertExpectations(t)
	})

	t.Run("disabled config bypasses the store", func(t *testing.T) {
		store := new(MockIdempotencyStore)
		inner := testutil.NewMockEventHandler("TestEvent")
		h := NewIdempotentHandler(inner, store, zap.NewNop(),
			WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}))

		require.NoError(t, h.Handle(ctx, ev))
		require.NoError(t, h.Handle(ctx, ev))
		assert.Equal(t, 2, inner.HandledCount())
		store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOutboxPublisher_SaveEvents(t *testing.T) {
	ctx := context.Background()
	serializer := NewEventSerializer()
	serializer.Register(testutil.NewTestEvent("TestEvent", uuid.New()))
	publisher := NewOutboxPublisher(serializer, shared.DefaultRetryPolicy())

	t.Run("rejects a non-gorm transaction", func(t *testing.T) {
		err := publisher.SaveEvents(ctx, "not a tx", testutil.NewTestEvent("TestEvent", uuid.New()))
		assert.Error(t, err)
	})

	t.Run("writes pending entries", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		ev := testutil.NewTestEvent("TestEvent", uuid.New())
		require.NoError(t, publisher.SaveEvents(ctx, db, ev))

		counts, err := NewGormOutboxRepository(db).CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[shared.OutboxStatusPending])
	})
}
