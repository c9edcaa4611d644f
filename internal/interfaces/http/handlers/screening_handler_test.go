package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appscreen "github.com/turtacn/ChemScreen/internal/application/screening"
	"github.com/turtacn/ChemScreen/internal/domain/screening"
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

type screeningServiceStub struct {
	screenStream   func(ctx context.Context, req appscreen.Request, r io.Reader, format appscreen.CorpusFormat, smilesColumn string) (*appscreen.Result, error)
	screenRegistry func(ctx context.Context, req appscreen.Request) (*appscreen.Result, error)
	submit         func(ctx context.Context, req appscreen.Request) (*screening.Run, error)
	getRun         func(ctx context.Context, runID common.ID) (*screening.Run, error)
	listRuns       func(ctx context.Context, status screening.RunStatus, page common.Pagination) ([]*screening.Run, int64, error)
	reportURL      func(ctx context.Context, runID common.ID) (string, error)
}

func (s *screeningServiceStub) ScreenStream(ctx context.Context, req appscreen.Request, r io.Reader, format appscreen.CorpusFormat, smilesColumn string) (*appscreen.Result, error) {
	return s.screenStream(ctx, req, r, format, smilesColumn)
}

func (s *screeningServiceStub) ScreenRegistry(ctx context.Context, req appscreen.Request) (*appscreen.Result, error) {
	return s.screenRegistry(ctx, req)
}

func (s *screeningServiceStub) Submit(ctx context.Context, req appscreen.Request) (*screening.Run, error) {
	return s.submit(ctx, req)
}

func (s *screeningServiceStub) GetRun(ctx context.Context, runID common.ID) (*screening.Run, error) {
	return s.getRun(ctx, runID)
}

func (s *screeningServiceStub) ListRuns(ctx context.Context, status screening.RunStatus, page common.Pagination) ([]*screening.Run, int64, error) {
	return s.listRuns(ctx, status, page)
}

func (s *screeningServiceStub) ReportURL(ctx context.Context, runID common.ID) (string, error) {
	return s.reportURL(ctx, runID)
}

func screeningRouter(stub *screeningServiceStub) *gin.Engine {
	h := NewScreeningHandler(stub)
	r := gin.New()
	r.POST("/screening/screen", h.Screen)
	r.POST("/screening/screen/upload", h.ScreenUpload)
	r.POST("/screening/runs", h.SubmitRun)
	r.GET("/screening/runs", h.ListRuns)
	r.GET("/screening/runs/:id", h.GetRun)
	r.GET("/screening/runs/:id/report", h.Report)
	return r
}

func TestScreenWithInlineCorpus(t *testing.T) {
	var gotCorpus string
	stub := &screeningServiceStub{
		screenStream: func(_ context.Context, req appscreen.Request, r io.Reader, format appscreen.CorpusFormat, _ string) (*appscreen.Result, error) {
			raw, err := io.ReadAll(r)
			require.NoError(t, err)
			gotCorpus = string(raw)
			assert.Equal(t, appscreen.FormatSMI, format)
			assert.Equal(t, "c1ccccc1", req.QuerySMILES)
			return &appscreen.Result{
				Hits:       []mtypes.SimilarityHit{{RefID: "mol-1", Score: 0.95, Rank: 1}},
				CorpusSize: 2,
			}, nil
		},
	}

	body := `{"query_smiles":"c1ccccc1","corpus":["c1ccccc1 mol-1 benzene","CCO mol-2 ethanol"]}`
	w := postJSON(screeningRouter(stub), "/screening/screen", body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1ccccc1 mol-1 benzene\nCCO mol-2 ethanol", gotCorpus)
	assert.Contains(t, w.Body.String(), `"corpus_size":2`)
}

func TestScreenWithoutCorpusUsesRegistry(t *testing.T) {
	called := false
	stub := &screeningServiceStub{
		screenRegistry: func(_ context.Context, req appscreen.Request) (*appscreen.Result, error) {
			called = true
			return &appscreen.Result{CorpusSize: 100}, nil
		},
	}

	w := postJSON(screeningRouter(stub), "/screening/screen", `{"query_smiles":"c1ccccc1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestScreenRequiresQuerySMILES(t *testing.T) {
	w := postJSON(screeningRouter(&screeningServiceStub{}), "/screening/screen", `{"mode":"similarity"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("corpus", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestScreenUploadDetectsFormatByExtension(t *testing.T) {
	var gotFormat appscreen.CorpusFormat
	var gotColumn string
	stub := &screeningServiceStub{
		screenStream: func(_ context.Context, req appscreen.Request, r io.Reader, format appscreen.CorpusFormat, smilesColumn string) (*appscreen.Result, error) {
			gotFormat = format
			gotColumn = smilesColumn
			assert.Equal(t, 25, req.TopK)
			assert.Equal(t, 0.6, req.Threshold)
			return &appscreen.Result{CorpusSize: 1}, nil
		},
	}

	body, contentType := multipartUpload(t, "corpus.csv", "smiles,id\nCCO,mol-1\n", map[string]string{
		"query_smiles":  "CCO",
		"smiles_column": "smiles",
		"top_k":         "25",
		"threshold":     "0.6",
	})
	req := httptest.NewRequest(http.MethodPost, "/screening/screen/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	screeningRouter(stub).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, appscreen.FormatCSV, gotFormat)
	assert.Equal(t, "smiles", gotColumn)
}

func TestScreenUploadRejectsUnknownExtension(t *testing.T) {
	body, contentType := multipartUpload(t, "corpus.sdf", "data", map[string]string{"query_smiles": "CCO"})
	req := httptest.NewRequest(http.MethodPost, "/screening/screen/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	screeningRouter(&screeningServiceStub{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScreenUploadRequiresFile(t *testing.T) {
	w := postJSON(screeningRouter(&screeningServiceStub{}), "/screening/screen/upload", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRunReturnsAccepted(t *testing.T) {
	stub := &screeningServiceStub{
		submit: func(_ context.Context, req appscreen.Request) (*screening.Run, error) {
			return screening.NewRun(screening.RunParams{
				QuerySMILES: req.QuerySMILES,
				Mode:        screening.Mode2D,
			})
		},
	}

	w := postJSON(screeningRouter(stub), "/screening/runs", `{"query_smiles":"c1ccccc1"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), string(screening.StatusPending))
}

func TestGetRunUnknownIDIs404(t *testing.T) {
	stub := &screeningServiceStub{
		getRun: func(_ context.Context, runID common.ID) (*screening.Run, error) {
			return nil, errors.New(errors.ErrCodeScreeningRunNotFound, "screening run not found")
		},
	}

	w := httptest.NewRecorder()
	screeningRouter(stub).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/screening/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRunsForwardsStatusFilter(t *testing.T) {
	var gotStatus screening.RunStatus
	stub := &screeningServiceStub{
		listRuns: func(_ context.Context, status screening.RunStatus, page common.Pagination) ([]*screening.Run, int64, error) {
			gotStatus = status
			return nil, 0, nil
		},
	}

	w := httptest.NewRecorder()
	screeningRouter(stub).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/screening/runs?status=completed", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, screening.StatusCompleted, gotStatus)
}

func TestReportReturnsPresignedURL(t *testing.T) {
	stub := &screeningServiceStub{
		reportURL: func(_ context.Context, runID common.ID) (string, error) {
			return "https://minio.local/reports/" + string(runID), nil
		},
	}

	w := httptest.NewRecorder()
	screeningRouter(stub).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/screening/runs/run-1/report", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://minio.local/reports/run-1")
}

func TestReportPendingRunIsConflict(t *testing.T) {
	stub := &screeningServiceStub{
		reportURL: func(_ context.Context, _ common.ID) (string, error) {
			return "", errors.New(errors.ErrCodeConflict, "run has not completed")
		},
	}

	w := httptest.NewRecorder()
	screeningRouter(stub).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/screening/runs/run-1/report", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}
