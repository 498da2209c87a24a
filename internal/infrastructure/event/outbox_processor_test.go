package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockOutboxRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*shared.OutboxEntry
	updates int

	claimErr error
}

func newMockOutboxRepository() *mockOutboxRepository {
	return &mockOutboxRepository{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (m *mockOutboxRepository) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

func (m *mockOutboxRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	var out []*shared.OutboxEntry
	for _, e := range m.entries {
		if len(out) >= limit {
			break
		}
		due := e.Status == shared.OutboxStatusPending ||
			(e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(now))
		if due {
			e.Status = shared.OutboxStatusProcessing
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutboxRepository) FindDead(_ context.Context, _, _ int) ([]*shared.OutboxEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*shared.OutboxEntry
	for _, e := range m.entries {
		if e.Status == shared.OutboxStatusDead {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockOutboxRepository) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return e, nil
}

func (m *mockOutboxRepository) Update(_ context.Context, entry *shared.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	m.updates++
	return nil
}

func (m *mockOutboxRepository) DeleteSentBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if e.Status == shared.OutboxStatusSent && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *mockOutboxRepository) CountByStatus(_ context.Context) (map[shared.OutboxStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range m.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (m *mockOutboxRepository) get(id uuid.UUID) shared.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.entries[id]
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []shared.OutboxStatus
}

func (o *recordingObserver) ObserveTask(_ context.Context, _ string, status shared.OutboxStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

type processorFixture struct {
	repo       *mockOutboxRepository
	dispatcher *Dispatcher
	serializer *EventSerializer
	processor  *OutboxProcessor
	handler    *testutil.MockEventHandler
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	repo := newMockOutboxRepository()
	dispatcher := NewDispatcher(zap.NewNop())
	handler := testutil.NewMockEventHandler("TestEvent")
	dispatcher.Subscribe(handler)

	serializer := NewEventSerializer()
	serializer.Register(testutil.NewTestEvent("TestEvent", uuid.New()))

	processor := NewOutboxProcessor(repo, dispatcher, serializer, OutboxProcessorConfig{
		BatchSize:    10,
		PollInterval: 10 * time.Millisecond,
		Workers:      2,
	}, zap.NewNop())
	return &processorFixture{repo, dispatcher, serializer, processor, handler}
}

func (f *processorFixture) enqueue(t *testing.T, maxRetries int) *shared.OutboxEntry {
	t.Helper()
	ev := testutil.NewTestEvent("TestEvent", uuid.New())
	payload, err := f.serializer.Serialize(ev)
	require.NoError(t, err)
	entry := shared.NewOutboxEntry(ev, payload, shared.RetryPolicy{
		MaxRetries:  maxRetries,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
	})
	require.NoError(t, f.repo.Save(context.Background(), entry))
	return entry
}

func TestOutboxProcessor_ProcessOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("successful dispatch marks entries sent", func(t *testing.T) {
		f := newProcessorFixture(t)
		observer := &recordingObserver{}
		f.processor.SetObserver(observer)
		a := f.enqueue(t, 3)
		b := f.enqueue(t, 3)

		result, err := f.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Claimed: 2, Sent: 2}, result)
		assert.Equal(t, 2, f.handler.HandledCount())
		assert.Equal(t, shared.OutboxStatusSent, f.repo.get(a.ID).Status)
		assert.Equal(t, shared.OutboxStatusSent, f.repo.get(b.ID).Status)
		assert.NotNil(t, f.repo.get(a.ID).ProcessedAt)
		assert.ElementsMatch(t, []shared.OutboxStatus{shared.OutboxStatusSent, shared.OutboxStatusSent}, observer.statuses)
	})

	t.Run("failed dispatch schedules a retry", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.handler.SetError(assert.AnError)
		entry := f.enqueue(t, 3)

		result, err := f.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Claimed: 1, Failed: 1}, result)

		stored := f.repo.get(entry.ID)
		assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Contains(t, stored.LastError, assert.AnError.Error())
		require.NotNil(t, stored.NextRetryAt)
		assert.True(t, stored.NextRetryAt.After(time.Now()))

		result, err = f.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Claimed, "retry is not due yet")
	})

	t.Run("exhausted budget moves the entry to dead", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.handler.SetError(assert.AnError)
		entry := f.enqueue(t, 2)

		_, err := f.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		f.processor.now = func() time.Time { return time.Now().Add(time.Hour) }

		result, err := f.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, ProcessResult{Claimed: 1, Dead: 1}, result)
		stored := f.repo.get(entry.ID)
		assert.Equal(t, shared.OutboxStatusDead, stored.Status)
		assert.Nil(t, stored.NextRetryAt)
	})

	t.Run("unknown event type fails the task", func(t *testing.T) {
		f := newProcessorFixture(t)
		entry := shared.NewOutboxEntry(testutil.NewTestEvent("Unregistered", uuid.New()), []byte(`{}`), shared.DefaultRetryPolicy())
		require.NoError(t, f.repo.Save(ctx, entry))

		result, err := f.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		assert.Contains(t, f.repo.get(entry.ID).LastError, "unknown event type")
	})

	t.Run("claim errors are returned", func(t *testing.T) {
		f := newProcessorFixture(t)
		f.repo.claimErr = assert.AnError
		_, err := f.processor.ProcessOnce(ctx)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestOutboxProcessor_RetryDead(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.handler.SetError(assert.AnError)
	entry := f.enqueue(t, 1)

	_, err := f.processor.ProcessOnce(ctx)
	require.NoError(t, err)
	dead := f.repo.get(entry.ID)
	require.True(t, dead.IsDead())

	f.handler.SetError(nil)
	require.NoError(t, f.processor.RetryDead(ctx, &dead))
	assert.Equal(t, shared.OutboxStatusPending, f.repo.get(entry.ID).Status)

	result, err := f.processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	sent := f.repo.get(entry.ID)
	err = f.processor.RetryDead(ctx, &sent)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestOutboxProcessor_Cleanup(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t)
	f.processor.config.CleanupRetention = time.Hour

	old := f.enqueue(t, 3)
	old.MarkSent()
	past := time.Now().Add(-2 * time.Hour)
	old.ProcessedAt = &past
	fresh := f.enqueue(t, 3)
	fresh.MarkSent()

	f.processor.Cleanup(ctx)

	counts, err := f.repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	f := newProcessorFixture(t)
	f.enqueue(t, 3)

	require.NoError(t, f.processor.Start(context.Background()))
	ok := testutil.WaitForCondition(t, func() bool { return f.handler.HandledCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, ok)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.processor.Stop(stopCtx))
}
