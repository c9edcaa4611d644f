package screening

import (
	"time"

	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Screening Run
// ─────────────────────────────────────────────────────────────────────────────

// RunMode distinguishes 2D fingerprint screens from 3D shape screens.
type RunMode string

const (
	Mode2D RunMode = "similarity"
	Mode3D RunMode = "shape"
)

// RunStatus is the lifecycle state of a screening run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// RunParams captures the request that started a run, for reproducibility.
type RunParams struct {
	QuerySMILES     string                    `json:"query_smiles"`
	Mode            RunMode                   `json:"mode"`
	FingerprintType mtypes.FingerprintType    `json:"fingerprint_type,omitempty"`
	Metric          string                    `json:"metric,omitempty"`
	TopK            int                       `json:"top_k"`
	Threshold       float64                   `json:"threshold,omitempty"`
	LipinskiOnly    bool                      `json:"lipinski_only"`
	Seed            int64                     `json:"seed,omitempty"`
}

// Run is the aggregate for one screening job: its parameters, lifecycle
// state, and (once completed) its ranked results and load diagnostics.
type Run struct {
	common.BaseEntity

	Params  RunParams `json:"params"`
	Status  RunStatus `json:"status"`
	Error   string    `json:"error,omitempty"`

	CorpusSize int                     `json:"corpus_size"`
	Hits       []mtypes.SimilarityHit  `json:"hits,omitempty"`
	SkippedN   int                     `json:"skipped"`
	Report     *LoadReport             `json:"load_report,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun creates a pending run for the given parameters.
func NewRun(params RunParams) (*Run, error) {
	if params.QuerySMILES == "" {
		return nil, errors.New(errors.ErrCodeValidation, "query SMILES is required")
	}
	switch params.Mode {
	case Mode2D, Mode3D:
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown run mode %q", params.Mode)
	}
	if params.Threshold < 0 || params.Threshold > 1 {
		return nil, errors.Newf(errors.ErrCodeThresholdInvalid,
			"threshold must be in [0, 1], got %g", params.Threshold)
	}
	return &Run{
		BaseEntity: common.BaseEntity{ID: common.NewID()},
		Params:     params,
		Status:     StatusPending,
	}, nil
}

// Start transitions the run to running. Only pending runs can start.
func (r *Run) Start(now time.Time) error {
	if r.Status != StatusPending {
		return errors.Newf(errors.ErrCodeConflict, "run %s is %s, not pending", r.ID, r.Status)
	}
	r.Status = StatusRunning
	r.StartedAt = &now
	return nil
}

// Complete records results on a running run.
func (r *Run) Complete(now time.Time, hits []mtypes.SimilarityHit, corpusSize int, report *LoadReport) error {
	if r.Status != StatusRunning {
		return errors.Newf(errors.ErrCodeConflict, "run %s is %s, not running", r.ID, r.Status)
	}
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.Hits = hits
	r.CorpusSize = corpusSize
	r.Report = report
	for _, h := range hits {
		if h.Skipped {
			r.SkippedN++
		}
	}
	return nil
}

// Fail marks the run failed with a reason. Terminal states cannot fail again.
func (r *Run) Fail(now time.Time, reason string) error {
	if r.Status == StatusCompleted || r.Status == StatusFailed {
		return errors.Newf(errors.ErrCodeConflict, "run %s already %s", r.ID, r.Status)
	}
	r.Status = StatusFailed
	r.CompletedAt = &now
	r.Error = reason
	return nil
}
