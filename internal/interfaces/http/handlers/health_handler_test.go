package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

func healthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	return r
}

func TestLivenessAlwaysOK(t *testing.T) {
	h := NewHealthHandler("1.2.3", CheckFunc{
		CheckName: "postgres",
		Fn:        func(_ context.Context) error { return errors.New(errors.ErrCodeDatabaseError, "down") },
	})

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1.2.3")
}

func TestReadinessWithoutCheckersIsReady(t *testing.T) {
	w := httptest.NewRecorder()
	healthRouter(NewHealthHandler("test")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)
}

func TestReadinessAllHealthy(t *testing.T) {
	ok := func(_ context.Context) error { return nil }
	h := NewHealthHandler("test",
		CheckFunc{CheckName: "postgres", Fn: ok},
		CheckFunc{CheckName: "redis", Fn: ok},
	)

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "postgres")
	assert.Contains(t, w.Body.String(), "redis")
}

func TestReadinessOneUnhealthyIs503(t *testing.T) {
	h := NewHealthHandler("test",
		CheckFunc{CheckName: "postgres", Fn: func(_ context.Context) error { return nil }},
		CheckFunc{CheckName: "kafka", Fn: func(_ context.Context) error {
			return errors.New(errors.ErrCodeServiceUnavailable, "broker unreachable")
		}},
	)

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"not_ready"`)
	assert.Contains(t, w.Body.String(), "broker unreachable")
}
