package event

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(eventType string) *shared.OutboxEntry {
	event := testutil.NewTestEvent(eventType, uuid.New())
	return shared.NewOutboxEntry(event, []byte(`{"data":"x"}`), shared.DefaultRetryPolicy())
}

func TestGormOutboxRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	now := time.Now().UTC()

	pending := newEntry("A")
	retryDue := newEntry("B")
	retryDue.Status = shared.OutboxStatusFailed
	past := now.Add(-time.Minute)
	retryDue.NextRetryAt = &past
	retryLater := newEntry("C")
	retryLater.Status = shared.OutboxStatusFailed
	future := now.Add(time.Hour)
	retryLater.NextRetryAt = &future
	dead := newEntry("D")
	dead.Status = shared.OutboxStatusDead
	require.NoError(t, repo.Save(ctx, pending, retryDue, retryLater, dead))

	claimed, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(claimed))
	for i, e := range claimed {
		ids[i] = e.ID
		assert.Equal(t, shared.OutboxStatusProcessing, e.Status)
	}
	assert.ElementsMatch(t, []uuid.UUID{pending.ID, retryDue.ID}, ids)

	again, err := repo.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed rows are not handed out twice")

	t.Run("stale claims are taken over", func(t *testing.T) {
		repo.SetStaleProcessingAfter(time.Minute)
		later, err := repo.ClaimDue(ctx, now.Add(2*time.Minute), 10)
		require.NoError(t, err)
		assert.Len(t, later, 2)
	})

	t.Run("counts and dead letters", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[shared.OutboxStatusDead])
		assert.Equal(t, int64(2), counts[shared.OutboxStatusProcessing])

		deadEntries, total, err := repo.FindDead(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, deadEntries, 1)
		assert.Equal(t, dead.ID, deadEntries[0].ID)
	})
}

func TestGormOutboxRepository_UpdateAndCleanup(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewGormOutboxRepository(db)

	entry := newEntry("A")
	require.NoError(t, repo.Save(ctx, entry))

	entry.MarkSent()
	old := time.Now().Add(-48 * time.Hour)
	entry.ProcessedAt = &old
	require.NoError(t, repo.Update(ctx, entry))

	found, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, found.Status)

	deleted, err := repo.DeleteSentBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByID(ctx, entry.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormOutboxRepository_ClaimUsesSkipLocked(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	repo := NewGormOutboxRepository(mockDB.DB)

	mockDB.Mock.ExpectBegin()
	mockDB.Mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mockDB.Mock.ExpectCommit()

	claimed, err := repo.ClaimDue(context.Background(), time.Now(), 5)
	require.NoError(t, err)
	assert.Empty(t, claimed)
	mockDB.ExpectationsWereMet(t)
}
