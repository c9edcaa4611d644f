package handlers

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appscreen "github.com/turtacn/ChemScreen/internal/application/screening"
	"github.com/turtacn/ChemScreen/internal/domain/screening"
	"github.com/turtacn/ChemScreen/pkg/types/common"
)

// maxCorpusUploadBytes caps uploaded corpus files at 32 MiB.
const maxCorpusUploadBytes = 32 << 20

// ScreeningService is the slice of the screening application service the
// HTTP layer depends on.
type ScreeningService interface {
	ScreenStream(ctx context.Context, req appscreen.Request, r io.Reader, format appscreen.CorpusFormat, smilesColumn string) (*appscreen.Result, error)
	ScreenRegistry(ctx context.Context, req appscreen.Request) (*appscreen.Result, error)
	Submit(ctx context.Context, req appscreen.Request) (*screening.Run, error)
	GetRun(ctx context.Context, runID common.ID) (*screening.Run, error)
	ListRuns(ctx context.Context, status screening.RunStatus, page common.Pagination) ([]*screening.Run, int64, error)
	ReportURL(ctx context.Context, runID common.ID) (string, error)
}

// ScreeningHandler serves the virtual screening endpoints.
type ScreeningHandler struct {
	svc ScreeningService
}

func NewScreeningHandler(svc ScreeningService) *ScreeningHandler {
	return &ScreeningHandler{svc: svc}
}

// ScreenRequest is the body for the synchronous screen endpoint. Corpus
// lines, when present, use the .smi convention: SMILES, identifier, and an
// optional name, whitespace separated. An empty corpus screens the registry.
type ScreenRequest struct {
	appscreen.Request
	Corpus []string `json:"corpus,omitempty"`
}

// Screen handles POST /api/v1/screening/screen.
func (h *ScreeningHandler) Screen(c *gin.Context) {
	var req ScreenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if req.QuerySMILES == "" {
		respondValidation(c, "query_smiles is required")
		return
	}

	var (
		result *appscreen.Result
		err    error
	)
	if len(req.Corpus) > 0 {
		reader := strings.NewReader(strings.Join(req.Corpus, "\n"))
		result, err = h.svc.ScreenStream(c.Request.Context(), req.Request, reader, appscreen.FormatSMI, "")
	} else {
		result, err = h.svc.ScreenRegistry(c.Request.Context(), req.Request)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// ScreenUpload handles POST /api/v1/screening/screen/upload. The corpus
// arrives as a multipart file; the format follows the file extension and the
// screen parameters ride along as form fields.
func (h *ScreeningHandler) ScreenUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("corpus")
	if err != nil {
		respondValidation(c, "corpus file is required")
		return
	}
	if fileHeader.Size > maxCorpusUploadBytes {
		respondValidation(c, "corpus file exceeds the 32 MiB upload limit")
		return
	}

	var format appscreen.CorpusFormat
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".smi", ".txt":
		format = appscreen.FormatSMI
	case ".csv":
		format = appscreen.FormatCSV
	default:
		respondValidation(c, "corpus file must have a .smi, .txt, or .csv extension")
		return
	}

	req := appscreen.Request{
		QuerySMILES:     c.PostForm("query_smiles"),
		Mode:            c.PostForm("mode"),
		FingerprintType: c.PostForm("fingerprint_type"),
		Metric:          c.PostForm("metric"),
	}
	if req.QuerySMILES == "" {
		respondValidation(c, "query_smiles is required")
		return
	}
	if v := c.PostForm("top_k"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 {
			respondValidation(c, "top_k must be a positive integer")
			return
		}
		req.TopK = n
	}
	if v := c.PostForm("threshold"); v != "" {
		f, convErr := strconv.ParseFloat(v, 64)
		if convErr != nil {
			respondValidation(c, "threshold must be a number")
			return
		}
		req.Threshold = f
	}
	req.LipinskiOnly = c.PostForm("lipinski_only") == "true"

	file, err := fileHeader.Open()
	if err != nil {
		respondValidation(c, "corpus file could not be read")
		return
	}
	defer file.Close()

	result, err := h.svc.ScreenStream(c.Request.Context(), req, file, format, c.PostForm("smiles_column"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// SubmitRun handles POST /api/v1/screening/runs, queueing an asynchronous
// screen against the registry.
func (h *ScreeningHandler) SubmitRun(c *gin.Context) {
	var req appscreen.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if req.QuerySMILES == "" {
		respondValidation(c, "query_smiles is required")
		return
	}

	run, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, run)
}

// GetRun handles GET /api/v1/screening/runs/:id.
func (h *ScreeningHandler) GetRun(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, run)
}

// ListRuns handles GET /api/v1/screening/runs with an optional status filter.
func (h *ScreeningHandler) ListRuns(c *gin.Context) {
	status := screening.RunStatus(c.Query("status"))
	page := parsePagination(c)

	runs, total, err := h.svc.ListRuns(c.Request.Context(), status, page)
	if err != nil {
		respondError(c, err)
		return
	}
	page.Total = total
	respondPage(c, runs, page)
}

// Report handles GET /api/v1/screening/runs/:id/report, returning a
// presigned download URL for the archived hit list.
func (h *ScreeningHandler) Report(c *gin.Context) {
	url, err := h.svc.ReportURL(c.Request.Context(), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"url": url})
}
