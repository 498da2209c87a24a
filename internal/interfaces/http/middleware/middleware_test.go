package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
	SetupValidator()
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	t.Run("generates an id", func(t *testing.T) {
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("keeps and truncates a client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", 300))
		w := serve(engine, req)
		assert.Len(t, w.Body.String(), MaxRequestIDLength)
	})
}

func TestActor(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	engine := gin.New()
	engine.Use(RequestID(), Actor(DefaultActorConfig()))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/whoami", func(c *gin.Context) {
		tid, _ := GetTenantID(c)
		uid, hasUser := GetUserID(c)
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"tenant":     tid.String(),
			"user":       uid.String(),
			"has_user":   hasUser,
			"ctx_tenant": logger.GetTenantID(ctx),
			"ctx_req":    logger.GetRequestID(ctx) != "",
		})
	})

	t.Run("resolves tenant and user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(TenantIDHeader, tenantID.String())
		req.Header.Set(UserIDHeader, userID.String())
		w := serve(engine, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenant":"`+tenantID.String()+`","user":"`+userID.String()+
			`","has_user":true,"ctx_tenant":"`+tenantID.String()+`","ctx_req":true}`, w.Body.String())
	})

	t.Run("user is optional by default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(TenantIDHeader, tenantID.String())
		w := serve(engine, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"has_user":false`)
	})

	t.Run("rejects missing or malformed ids", func(t *testing.T) {
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(TenantIDHeader, tenantID.String())
		req.Header.Set(UserIDHeader, "bob")
		w = serve(engine, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_UNAUTHORIZED")
	})

	t.Run("skips health probes", func(t *testing.T) {
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("can require a user", func(t *testing.T) {
		strict := gin.New()
		strict.Use(Actor(ActorConfig{RequireUser: true}))
		strict.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TenantIDHeader, tenantID.String())
		assert.Equal(t, http.StatusUnauthorized, serve(strict, req).Code)
	})
}

func TestCORSAndBodyLimit(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://ops.example.com"}

	engine := gin.New()
	engine.Use(CORSWithConfig(cfg), BodyLimit(8))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := serve(engine, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(engine, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tenantID := uuid.New()
	engine := gin.New()
	engine.Use(RequestID(), Tracing(TracingConfig{ServiceName: "test", Enabled: true}),
		Actor(DefaultActorConfig()), SpanAttributes())
	engine.GET("/sheets/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/sheets/1", nil)
	req.Header.Set(TenantIDHeader, tenantID.String())
	serve(engine, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("tenant_id", tenantID.String()))

	disabled := gin.New()
	disabled.Use(Tracing(TracingConfig{Enabled: false}))
	disabled.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(disabled, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, recorder.Ended(), 1)
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mw, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)
	engine := gin.New()
	engine.Use(mw)
	engine.GET("/sheets/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(engine, httptest.NewRequest(http.MethodGet, "/sheets/1", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	names := make([]string, 0)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"http_server_request_total", "http_server_request_duration_seconds"}, names)
}

type amountRequest struct {
	Amount   decimal.Decimal `json:"amount" binding:"gte=0"`
	Quantity decimal.Decimal `json:"quantity" binding:"gt=0"`
	Kind     string          `json:"kind" binding:"required,oneof=SHORT RETURN"`
}

func TestSetupValidator_Decimals(t *testing.T) {
	engine := gin.New()
	engine.POST("/", func(c *gin.Context) {
		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(engine, req)
	}

	assert.Equal(t, http.StatusOK, post(`{"amount":"0","quantity":"1.5","kind":"SHORT"}`).Code)

	w := post(`{"amount":"-1","quantity":"1","kind":"SHORT"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "amount")

	w = post(`{"amount":"1","quantity":"0","kind":"SHORT"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "quantity")

	assert.Equal(t, http.StatusBadRequest, post(`{"amount":"1","quantity":"1","kind":"LOST"}`).Code)
}
