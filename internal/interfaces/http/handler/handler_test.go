package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/bootstrap"
	"github.com/pharmaerp/backend/internal/interfaces/http/middleware"
	"github.com/pharmaerp/backend/internal/interfaces/http/router"
	"github.com/pharmaerp/backend/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type pinger struct{ db *gorm.DB }

func (p pinger) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// apiEnv serves the full API over an in-memory database
type apiEnv struct {
	t      *testing.T
	engine *gin.Engine
	d      *bootstrap.Delivery
	f      *testutil.Fixture
	userID uuid.UUID
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	d := bootstrap.NewDelivery(db, bootstrap.DefaultOptions(), zap.NewNop())

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Actor(middleware.DefaultActorConfig()))
	router.Mount(engine, d.Handlers("pharmaerp-test", pinger{db}))

	return &apiEnv{
		t:      t,
		engine: engine,
		d:      d,
		f:      testutil.NewFixture(t, db),
		userID: uuid.New(),
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
		Details   []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
	Meta *struct {
		Total int64 `json:"total"`
	} `json:"meta"`
}

// do sends a request as the env's tenant and user
func (e *apiEnv) do(method, path string, body any) (*httptest.ResponseRecorder, apiResponse) {
	return e.doAs(method, path, body, e.f.TenantID.String(), e.userID.String())
}

func (e *apiEnv) doAs(method, path string, body any, tenant, user string) (*httptest.ResponseRecorder, apiResponse) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(middleware.TenantIDHeader, tenant)
	}
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// drain runs the cascade until no task is left
func (e *apiEnv) drain() {
	e.t.Helper()
	for i := 0; i < 10; i++ {
		res, err := e.d.Processor.ProcessOnce(context.Background())
		require.NoError(e.t, err)
		require.Zero(e.t, res.Dead, "cascade task exhausted its retries")
		if res.Failed > 0 {
			e.f.ExpireRetryBackoff()
			continue
		}
		if res.Claimed == 0 {
			return
		}
	}
	e.t.Fatal("cascade did not settle")
}
