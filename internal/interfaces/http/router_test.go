package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmol "github.com/turtacn/ChemScreen/internal/application/molecule"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ChemScreen/internal/interfaces/http/handlers"
	"github.com/turtacn/ChemScreen/internal/interfaces/http/middleware"
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeMoleculeService satisfies handlers.MoleculeService with canned answers.
type fakeMoleculeService struct {
	known map[string]mtypes.MoleculeDTO
}

func (f *fakeMoleculeService) Register(_ context.Context, in appmol.RegisterInput) (*appmol.RegisterResult, error) {
	return &appmol.RegisterResult{
		Molecule: mtypes.MoleculeDTO{SMILES: in.SMILES, Name: in.Name},
		Created:  true,
	}, nil
}

func (f *fakeMoleculeService) Get(_ context.Context, inchiKey string) (*mtypes.MoleculeDTO, error) {
	dto, ok := f.known[inchiKey]
	if !ok {
		return nil, errors.New(errors.ErrCodeMoleculeNotFound, "molecule not found")
	}
	return &dto, nil
}

func (f *fakeMoleculeService) List(_ context.Context, _ string, page common.Pagination) (*appmol.ListResult, error) {
	out := make([]mtypes.MoleculeDTO, 0, len(f.known))
	for _, dto := range f.known {
		out = append(out, dto)
	}
	page.Total = int64(len(out))
	return &appmol.ListResult{Molecules: out, Page: page}, nil
}

func (f *fakeMoleculeService) Delete(_ context.Context, inchiKey string) error {
	if _, ok := f.known[inchiKey]; !ok {
		return errors.New(errors.ErrCodeMoleculeNotFound, "molecule not found")
	}
	delete(f.known, inchiKey)
	return nil
}

func (f *fakeMoleculeService) Properties(_ context.Context, smiles string) (*appmol.Properties, error) {
	return &appmol.Properties{SMILES: smiles}, nil
}

func (f *fakeMoleculeService) FindSimilar(_ context.Context, _ string, _ int) ([]appmol.SimilarMolecule, error) {
	return nil, nil
}

func (f *fakeMoleculeService) GraphNeighbors(_ context.Context, _ string, _ float64, _ int) ([]repositories.SimilarNeighbor, error) {
	return nil, nil
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	svc := &fakeMoleculeService{known: map[string]mtypes.MoleculeDTO{
		"BSYNRYMUTXBXSQ-UHFFFAOYSA-N": {InChIKey: "BSYNRYMUTXBXSQ-UHFFFAOYSA-N", SMILES: "CC(=O)Oc1ccccc1C(=O)O"},
	}}
	return NewRouter(RouterConfig{
		MoleculeHandler: handlers.NewMoleculeHandler(svc),
		HealthHandler:   handlers.NewHealthHandler("test"),
		Logger:          logging.NewNopLogger(),
	})
}

func TestRouterHealthEndpoints(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alive"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterMoleculeRoutes(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/molecules/BSYNRYMUTXBXSQ-UHFFFAOYSA-N", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BSYNRYMUTXBXSQ-UHFFFAOYSA-N")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/molecules/UNKNOWN-KEY", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := strings.NewReader(`{"smiles":"c1ccccc1","name":"benzene"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/molecules", body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRouterUnregisteredGroupsReturn404(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/toxicity/predict", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterNilHandlersNoPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		r := NewRouter(RouterConfig{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouterSetsRequestID(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/molecules", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRouterRateLimitApplies(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.RequestsPerSecond = 1
	cfg.BurstSize = 1

	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test"),
		RateLimit:     &cfg,
	})

	// Health endpoints are skip-listed; API paths are limited.
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/molecules", nil))
	first := w.Code
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/molecules", nil))
	assert.Equal(t, http.StatusNotFound, first)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouterRateLimitCleanupStopsOnShutdown(t *testing.T) {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.CleanupInterval = time.Millisecond

	stop := make(chan struct{})
	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test"),
		RateLimit:     &cfg,
		Shutdown:      stop,
	})
	close(stop)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
