package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ---------------------------------------------------------------------------
// DTOs: request / response
// ---------------------------------------------------------------------------

// Run status values as reported by the API.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ScreenRequest describes one similarity or shape screen. Zero values fall
// back to the server defaults (mode "similarity", Morgan fingerprints,
// Tanimoto). Corpus lines use the .smi convention: SMILES, identifier, and
// an optional name, whitespace separated; an empty Corpus screens the
// registry instead.
type ScreenRequest struct {
	QuerySMILES     string   `json:"query_smiles"`
	Mode            string   `json:"mode,omitempty"`
	FingerprintType string   `json:"fingerprint_type,omitempty"`
	Metric          string   `json:"metric,omitempty"`
	TopK            int      `json:"top_k,omitempty"`
	Threshold       float64  `json:"threshold,omitempty"`
	LipinskiOnly    bool     `json:"lipinski_only,omitempty"`
	Seed            int64    `json:"seed,omitempty"`
	Corpus          []string `json:"corpus,omitempty"`
}

// CorpusRowError is one rejected corpus row.
type CorpusRowError struct {
	Line   int    `json:"line"`
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// CorpusLoadReport summarizes a corpus load. Malformed rows are skipped,
// never fatal.
type CorpusLoadReport struct {
	TotalRows int              `json:"total_rows"`
	Loaded    int              `json:"loaded"`
	Skipped   int              `json:"skipped"`
	Errors    []CorpusRowError `json:"errors,omitempty"`
}

// ScreenResult is the outcome of a synchronous screen.
type ScreenResult struct {
	Hits       []mtypes.SimilarityHit `json:"hits"`
	CorpusSize int                    `json:"corpus_size"`
	Skipped    int                    `json:"skipped"`
	Report     *CorpusLoadReport      `json:"load_report,omitempty"`
	Elapsed    time.Duration          `json:"elapsed"`
}

// RunParams echoes the parameters a run was created with.
type RunParams struct {
	QuerySMILES     string  `json:"query_smiles"`
	Mode            string  `json:"mode"`
	FingerprintType string  `json:"fingerprint_type,omitempty"`
	Metric          string  `json:"metric,omitempty"`
	TopK            int     `json:"top_k"`
	Threshold       float64 `json:"threshold,omitempty"`
	LipinskiOnly    bool    `json:"lipinski_only"`
	Seed            int64   `json:"seed,omitempty"`
}

// ScreeningRun is one asynchronous screening job with its lifecycle state
// and, once completed, its ranked hits.
type ScreeningRun struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Params RunParams `json:"params"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`

	CorpusSize int                    `json:"corpus_size"`
	Hits       []mtypes.SimilarityHit `json:"hits,omitempty"`
	Skipped    int                    `json:"skipped"`
	Report     *CorpusLoadReport      `json:"load_report,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListRunsRequest describes a paged run listing with an optional status
// filter.
type ListRunsRequest struct {
	Status   string
	Page     int
	PageSize int
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// ScreeningClient talks to the /api/v1/screening endpoints.
type ScreeningClient struct {
	client *Client
}

// Screen runs a synchronous screen and returns the ranked hits. With a
// Corpus it screens those structures; without one it screens the registry.
func (s *ScreeningClient) Screen(ctx context.Context, req ScreenRequest) (*ScreenResult, error) {
	if req.QuerySMILES == "" {
		return nil, fmt.Errorf("client: query_smiles is required")
	}

	var result ScreenResult
	if err := s.client.post(ctx, "/api/v1/screening/screen", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitRun queues an asynchronous screen against the registry and returns
// the pending run. Corpus on the request is ignored; poll GetRun for the
// results.
func (s *ScreeningClient) SubmitRun(ctx context.Context, req ScreenRequest) (*ScreeningRun, error) {
	if req.QuerySMILES == "" {
		return nil, fmt.Errorf("client: query_smiles is required")
	}
	req.Corpus = nil

	var run ScreeningRun
	if err := s.client.post(ctx, "/api/v1/screening/runs", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun fetches a run by ID.
func (s *ScreeningClient) GetRun(ctx context.Context, runID string) (*ScreeningRun, error) {
	if runID == "" {
		return nil, fmt.Errorf("client: run ID is required")
	}

	var run ScreeningRun
	if err := s.client.get(ctx, "/api/v1/screening/runs/"+url.PathEscape(runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns pages through runs, optionally filtered by status.
func (s *ScreeningClient) ListRuns(ctx context.Context, req ListRunsRequest) ([]ScreeningRun, *common.Pagination, error) {
	q := url.Values{}
	if req.Status != "" {
		q.Set("status", req.Status)
	}
	if req.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", req.Page))
	}
	if req.PageSize > 0 {
		q.Set("page_size", fmt.Sprintf("%d", req.PageSize))
	}

	path := "/api/v1/screening/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var runs []ScreeningRun
	page, err := s.client.getPaged(ctx, path, &runs)
	if err != nil {
		return nil, nil, err
	}
	return runs, page, nil
}

// ReportURL returns a presigned download URL for a completed run's
// archived hit list.
func (s *ScreeningClient) ReportURL(ctx context.Context, runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("client: run ID is required")
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := s.client.get(ctx, "/api/v1/screening/runs/"+url.PathEscape(runID)+"/report", &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

// WaitForRun polls GetRun until the run completes, fails, or the context
// expires.
func (s *ScreeningClient) WaitForRun(ctx context.Context, runID string, interval time.Duration) (*ScreeningRun, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		switch run.Status {
		case RunStatusCompleted, RunStatusFailed:
			return run, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
