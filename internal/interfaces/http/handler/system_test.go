package handler_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence/models"
	"github.com/pharmaerp/backend/internal/interfaces/http/dto"
	"github.com/pharmaerp/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_Probes(t *testing.T) {
	e := newAPIEnv(t)

	w, _ := e.doAs(http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w, _ = e.doAs(http.MethodGet, "/ready", nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())

	w, resp := e.do(http.MethodGet, "/api/v1/system/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pharmaerp-test", decode[handler.SystemInfoResponse](t, resp.Data).Name)
}

func TestOutboxHandler(t *testing.T) {
	e := newAPIEnv(t)
	route := e.f.Route("Green Cross", nil, "1000", "10", "100")
	_, _ = e.do(http.MethodPost, "/api/v1/short-return-logs", createBody(route, "ACTIVE", "1"))

	w, resp := e.do(http.MethodGet, "/api/v1/system/outbox/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]int64](t, resp.Data)
	assert.EqualValues(t, 1, stats[string(shared.OutboxStatusPending)])

	var row models.OutboxEntryModel
	require.NoError(t, e.f.DB.Where("tenant_id = ?", e.f.TenantID).Take(&row).Error)
	path := "/api/v1/system/outbox/" + row.ID.String() + "/retry"

	t.Run("only dead tasks can be retried", func(t *testing.T) {
		w, resp := e.do(http.MethodPost, path, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
	})

	require.NoError(t, e.f.DB.Model(&models.OutboxEntryModel{}).Where("id = ?", row.ID).
		Updates(map[string]any{"status": shared.OutboxStatusDead, "retry_count": 5, "last_error": "handler failed"}).Error)

	w, resp = e.do(http.MethodGet, "/api/v1/system/outbox/dead", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dead := decode[[]handler.OutboxEntryResponse](t, resp.Data)
	require.Len(t, dead, 1)
	assert.Equal(t, row.ID, dead[0].ID)
	assert.Equal(t, "handler failed", dead[0].LastError)
	assert.EqualValues(t, 1, resp.Meta.Total)

	w, resp = e.do(http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	retried := decode[handler.OutboxEntryResponse](t, resp.Data)
	assert.Equal(t, string(shared.OutboxStatusPending), retried.Status)
	assert.Zero(t, retried.RetryCount)

	e.drain()
	assert.True(t, e.f.InvoiceGroupRow(route.InvoiceGroupID).TotalShort.IsPositive())

	t.Run("bad ids", func(t *testing.T) {
		w, _ := e.do(http.MethodPost, "/api/v1/system/outbox/nope/retry", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = e.do(http.MethodPost, "/api/v1/system/outbox/"+uuid.NewString()+"/retry", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
