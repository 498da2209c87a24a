package handler_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	deliveryapp "github.com/pharmaerp/backend/internal/application/delivery"
	"github.com/pharmaerp/backend/internal/domain/delivery"
	"github.com/pharmaerp/backend/internal/interfaces/http/dto"
	"github.com/pharmaerp/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBody(route testutil.Route, status, qty string) map[string]any {
	return map[string]any{
		"order_id":         route.OrderID,
		"invoice_group_id": route.InvoiceGroupID,
		"kind":             "SHORT",
		"status":           status,
		"items": []map[string]any{
			{"stock_id": route.StockID, "quantity": qty, "rate": "100"},
		},
	}
}

func TestShortReturnHandler_Create(t *testing.T) {
	e := newAPIEnv(t)
	route := e.f.Route("Green Cross", nil, "1000", "10", "100")

	w, resp := e.do(http.MethodPost, "/api/v1/short-return-logs", createBody(route, "DRAFT", "2"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	log := decode[deliveryapp.ShortReturnLogResponse](t, resp.Data)
	assert.Equal(t, "DRAFT", log.Status)
	assert.Equal(t, e.userID, log.ReceivedBy)
	assert.True(t, testutil.Dec("200").Equal(log.Amount))
	require.Len(t, log.Items, 1)

	t.Run("same receiver and day conflicts", func(t *testing.T) {
		w, resp := e.do(http.MethodPost, "/api/v1/short-return-logs", createBody(route, "DRAFT", "1"))
		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, delivery.CodeDuplicateLog, resp.Error.Code)
	})

	t.Run("quantity beyond the order is unprocessable", func(t *testing.T) {
		body := createBody(route, "DRAFT", "9")
		body["received_by"] = uuid.New()
		w, resp := e.do(http.MethodPost, "/api/v1/short-return-logs", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, delivery.CodeQuantityExceeded, resp.Error.Code)
	})
}

func TestShortReturnHandler_CreateValidation(t *testing.T) {
	e := newAPIEnv(t)
	route := e.f.Route("Lazz", nil, "1000", "10", "100")

	t.Run("field errors are listed", func(t *testing.T) {
		body := createBody(route, "DRAFT", "0")
		body["kind"] = "LOST"
		w, resp := e.do(http.MethodPost, "/api/v1/short-return-logs", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

		fields := make([]string, 0, len(resp.Error.Details))
		for _, d := range resp.Error.Details {
			fields = append(fields, d.Field)
		}
		assert.Contains(t, fields, "kind")
		assert.Contains(t, fields, "quantity")
	})

	t.Run("malformed json", func(t *testing.T) {
		w, resp := e.do(http.MethodPost, "/api/v1/short-return-logs", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	})

	t.Run("missing user", func(t *testing.T) {
		w, _ := e.doAs(http.MethodPost, "/api/v1/short-return-logs", createBody(route, "DRAFT", "1"), e.f.TenantID.String(), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing tenant", func(t *testing.T) {
		w, _ := e.doAs(http.MethodPost, "/api/v1/short-return-logs", createBody(route, "DRAFT", "1"), "", e.userID.String())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestShortReturnHandler_Lifecycle(t *testing.T) {
	e := newAPIEnv(t)
	route := e.f.Route("Tamanna", nil, "1000", "10", "100")

	_, resp := e.do(http.MethodPost, "/api/v1/short-return-logs", createBody(route, "DRAFT", "3"))
	created := decode[deliveryapp.ShortReturnLogResponse](t, resp.Data)

	w, resp := e.do(http.MethodGet, "/api/v1/short-return-logs/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[deliveryapp.ShortReturnLogResponse](t, resp.Data).ID)

	w, resp = e.do(http.MethodPost, "/api/v1/short-return-logs/"+created.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ACTIVE", decode[deliveryapp.ShortReturnLogResponse](t, resp.Data).Status)

	w, resp = e.do(http.MethodPost, "/api/v1/short-return-logs/"+created.ID.String()+"/approve", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, delivery.CodeInvalidTransition, resp.Error.Code)

	e.drain()
	assert.True(t, testutil.Dec("300").Equal(e.f.InvoiceGroupRow(route.InvoiceGroupID).TotalShort))

	w, resp = e.do(http.MethodGet, "/api/v1/invoice-groups/"+route.InvoiceGroupID.String()+"/short-return-logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.Meta)
	assert.EqualValues(t, 1, resp.Meta.Total)

	w, _ = e.do(http.MethodDelete, "/api/v1/short-return-logs/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	e.drain()
	assert.True(t, e.f.InvoiceGroupRow(route.InvoiceGroupID).TotalShort.IsZero())
}

func TestShortReturnHandler_NotFound(t *testing.T) {
	e := newAPIEnv(t)

	w, resp := e.do(http.MethodGet, "/api/v1/short-return-logs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)

	w, _ = e.do(http.MethodGet, "/api/v1/short-return-logs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodGet, "/api/v1/invoice-groups/"+uuid.NewString()+"/short-return-logs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShortReturnHandler_TenantIsolation(t *testing.T) {
	e := newAPIEnv(t)
	route := e.f.Route("Shared", nil, "1000", "10", "100")
	_, resp := e.do(http.MethodPost, "/api/v1/short-return-logs", createBody(route, "DRAFT", "1"))
	created := decode[deliveryapp.ShortReturnLogResponse](t, resp.Data)

	w, _ := e.doAs(http.MethodGet, "/api/v1/short-return-logs/"+created.ID.String(), nil, uuid.NewString(), e.userID.String())
	assert.Equal(t, http.StatusNotFound, w.Code)
}
