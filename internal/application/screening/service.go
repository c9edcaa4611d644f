// Package screening orchestrates similarity and shape screens: synchronous
// screens over uploaded corpora, and the asynchronous run lifecycle executed
// by the worker.
package screening

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/internal/domain/screening"
	"github.com/turtacn/ChemScreen/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// reportURLExpiry bounds how long a presigned report link stays valid.
const reportURLExpiry = 24 * time.Hour

// ─────────────────────────────────────────────────────────────────────────────
// Collaborator interfaces
// ─────────────────────────────────────────────────────────────────────────────

// RunStore persists screening runs.
type RunStore interface {
	Save(ctx context.Context, run *screening.Run) error
	Update(ctx context.Context, run *screening.Run) error
	FindByID(ctx context.Context, id common.ID) (*screening.Run, error)
	List(ctx context.Context, status screening.RunStatus, page common.Pagination) ([]*screening.Run, int64, error)
}

// MoleculeSource supplies the registered corpus for registry-backed screens.
type MoleculeSource interface {
	ListAll(ctx context.Context, limit int) ([]*molecule.Molecule, error)
}

// Reports archives completed run reports in object storage.
type Reports interface {
	Put(ctx context.Context, runID string, report interface{}) error
	DownloadURL(ctx context.Context, runID string, expiry time.Duration) (string, error)
}

// Events publishes run lifecycle events.
type Events interface {
	PublishEvent(ctx context.Context, topic string, key string, env *kafka.EventEnvelope) error
}

// Locker serializes run execution across workers.
type Locker interface {
	TryAcquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// LockFactory builds a Locker scoped to one run.
type LockFactory func(runID string) Locker

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// Service runs screens and manages the run lifecycle.
type Service struct {
	runs      RunStore
	registry  MoleculeSource
	reports   Reports
	events    Events
	lockFor   LockFactory
	cfg       config.ScreeningConfig
	logger    logging.Logger
	now       func() time.Time
}

// Deps bundles the collaborators for NewService. Reports, events and the
// lock factory may be nil; the corresponding step is then skipped.
type Deps struct {
	Runs     RunStore
	Registry MoleculeSource
	Reports  Reports
	Events   Events
	LockFor  LockFactory
}

func NewService(deps Deps, cfg config.ScreeningConfig, log logging.Logger) (*Service, error) {
	if deps.Runs == nil {
		return nil, errors.New(errors.ErrCodeValidation, "run store is required")
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.MorganBits <= 0 {
		cfg.MorganBits = mtypes.FingerprintMorgan.DefaultLength()
	}
	if cfg.EmbedMaxIterations <= 0 {
		cfg.EmbedMaxIterations = 200
	}
	return &Service{
		runs:     deps.Runs,
		registry: deps.Registry,
		reports:  deps.Reports,
		events:   deps.Events,
		lockFor:  deps.LockFor,
		cfg:      cfg,
		logger:   log.Named("screening_service"),
		now:      time.Now,
	}, nil
}

// Request describes one screen: the query structure plus scoring and
// ranking parameters. Zero values fall back to configured defaults.
type Request struct {
	QuerySMILES     string  `json:"query_smiles"`
	Mode            string  `json:"mode"`
	FingerprintType string  `json:"fingerprint_type,omitempty"`
	Metric          string  `json:"metric,omitempty"`
	TopK            int     `json:"top_k,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
	LipinskiOnly    bool    `json:"lipinski_only,omitempty"`
	Seed            int64   `json:"seed,omitempty"`
}

// Result is the outcome of a synchronous screen.
type Result struct {
	Hits       []mtypes.SimilarityHit `json:"hits"`
	CorpusSize int                    `json:"corpus_size"`
	Skipped    int                    `json:"skipped"`
	Report     *screening.LoadReport  `json:"load_report,omitempty"`
	Elapsed    time.Duration          `json:"elapsed"`
}

func (s *Service) params(req Request) (screening.RunParams, error) {
	mode := screening.RunMode(req.Mode)
	if req.Mode == "" {
		mode = screening.Mode2D
	}

	p := screening.RunParams{
		QuerySMILES:  req.QuerySMILES,
		Mode:         mode,
		TopK:         req.TopK,
		Threshold:    req.Threshold,
		LipinskiOnly: req.LipinskiOnly,
		Seed:         req.Seed,
	}
	if p.TopK <= 0 {
		p.TopK = s.cfg.DefaultTopK
	}
	if mode == screening.Mode2D {
		if p.Threshold == 0 {
			p.Threshold = s.cfg.DefaultThreshold
		}
		fpType := mtypes.FingerprintType(req.FingerprintType)
		if req.FingerprintType == "" {
			fpType = mtypes.FingerprintMorgan
		}
		if !fpType.IsValid() {
			return p, errors.Newf(errors.ErrCodeFingerprintUnsupported,
				"unknown fingerprint type %q", req.FingerprintType)
		}
		p.FingerprintType = fpType
		p.Metric = req.Metric
		if p.Metric == "" {
			p.Metric = string(molecule.MetricTanimoto)
		}
	}
	return p, nil
}

// score runs the configured scorer and ranker against a corpus.
func (s *Service) score(params screening.RunParams, corpus *screening.Corpus) ([]mtypes.SimilarityHit, error) {
	query, err := molecule.NewMolecule(params.QuerySMILES)
	if err != nil {
		return nil, err
	}

	var hits []mtypes.SimilarityHit
	ranker := screening.Ranker{TopK: params.TopK}
	if params.LipinskiOnly {
		ranker.Filters = append(ranker.Filters, screening.LipinskiFilter())
	}

	switch params.Mode {
	case screening.Mode2D:
		hits, err = screening.ScoreSimilarity(query, corpus,
			params.FingerprintType, molecule.SimilarityMetric(params.Metric))
		ranker.Order = screening.OrderDescending
		if params.Threshold > 0 {
			ranker.Filters = append(ranker.Filters, screening.ThresholdFilter(params.Threshold))
		}
	case screening.Mode3D:
		hits, err = screening.ScoreShape(query, corpus, s.cfg.EmbedMaxIterations, params.Seed)
		ranker.Order = screening.OrderAscending
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown run mode %q", params.Mode)
	}
	if err != nil {
		return nil, err
	}
	return ranker.Rank(hits, corpus)
}

// CorpusFormat selects the parser for an uploaded corpus stream.
type CorpusFormat string

const (
	FormatSMI CorpusFormat = "smi"
	FormatCSV CorpusFormat = "csv"
)

// ScreenStream screens an uploaded corpus synchronously. CSV streams need
// the SMILES column name; smilesColumn is ignored for .smi input.
func (s *Service) ScreenStream(ctx context.Context, req Request, r io.Reader, format CorpusFormat, smilesColumn string) (*Result, error) {
	params, err := s.params(req)
	if err != nil {
		return nil, err
	}

	var corpus *screening.Corpus
	var report *screening.LoadReport
	switch format {
	case FormatSMI:
		corpus, report, err = screening.ReadSMI(r)
	case FormatCSV:
		corpus, report, err = screening.ReadCSV(r, screening.CSVOptions{SMILESColumn: smilesColumn})
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown corpus format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if corpus.Len() > s.cfg.MaxCorpusSize && s.cfg.MaxCorpusSize > 0 {
		return nil, errors.Newf(errors.ErrCodeValidation,
			"corpus size %d exceeds limit %d", corpus.Len(), s.cfg.MaxCorpusSize)
	}
	return s.screen(ctx, params, corpus, report)
}

// ScreenRegistry screens the registered molecule corpus synchronously.
func (s *Service) ScreenRegistry(ctx context.Context, req Request) (*Result, error) {
	params, err := s.params(req)
	if err != nil {
		return nil, err
	}
	corpus, err := s.registryCorpus(ctx)
	if err != nil {
		return nil, err
	}
	return s.screen(ctx, params, corpus, nil)
}

func (s *Service) registryCorpus(ctx context.Context) (*screening.Corpus, error) {
	if s.registry == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "molecule registry is not configured")
	}
	mols, err := s.registry.ListAll(ctx, s.cfg.MaxCorpusSize)
	if err != nil {
		return nil, err
	}
	candidates := make([]screening.Candidate, 0, len(mols))
	for i, m := range mols {
		candidates = append(candidates, screening.Candidate{
			Index:  i,
			RefID:  m.InChIKey,
			SMILES: m.CanonicalSMILES,
			Name:   m.Name,
			Mol:    m,
		})
	}
	return screening.NewCorpus(candidates)
}

func (s *Service) screen(_ context.Context, params screening.RunParams, corpus *screening.Corpus, report *screening.LoadReport) (*Result, error) {
	started := s.now()
	hits, err := s.score(params, corpus)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Hits:       hits,
		CorpusSize: corpus.Len(),
		Report:     report,
		Elapsed:    s.now().Sub(started),
	}
	for _, h := range hits {
		if h.Skipped {
			res.Skipped++
		}
	}
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Asynchronous runs
// ─────────────────────────────────────────────────────────────────────────────

// Submit creates a pending run over the registry corpus and requests its
// execution on the bus.
func (s *Service) Submit(ctx context.Context, req Request) (*screening.Run, error) {
	params, err := s.params(req)
	if err != nil {
		return nil, err
	}
	run, err := screening.NewRun(params)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	if s.events != nil {
		env, err := kafka.NewEventEnvelope(kafka.TopicScreeningRequested, "apiserver", kafka.ScreeningRequestedPayload{
			RunID:       run.ID.String(),
			Mode:        string(run.Params.Mode),
			RequestedAt: s.now().UTC(),
		})
		if err == nil {
			err = s.events.PublishEvent(ctx, kafka.TopicScreeningRequested, run.ID.String(), env)
		}
		if err != nil {
			// The run stays pending; a requeue or the reconciler picks it up.
			s.logger.Warn("screening request publish failed",
				logging.String("run_id", run.ID.String()), logging.Err(err))
		}
	}
	return run, nil
}

// Execute claims and runs one pending screening run end to end. A second
// worker calling Execute for the same run loses the lock and returns a
// conflict.
func (s *Service) Execute(ctx context.Context, runID common.ID) error {
	if s.lockFor != nil {
		lock := s.lockFor(runID.String())
		if err := lock.TryAcquire(ctx); err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				s.logger.Warn("run lock release failed",
					logging.String("run_id", runID.String()), logging.Err(err))
			}
		}()
	}

	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		return err
	}
	if err := run.Start(s.now()); err != nil {
		return err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return err
	}

	corpus, err := s.registryCorpus(ctx)
	if err != nil {
		return s.failRun(ctx, run, err)
	}
	hits, err := s.score(run.Params, corpus)
	if err != nil {
		return s.failRun(ctx, run, err)
	}
	if err := run.Complete(s.now(), hits, corpus.Len(), nil); err != nil {
		return err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return err
	}

	if s.reports != nil {
		if err := s.reports.Put(ctx, run.ID.String(), run); err != nil {
			s.logger.Warn("report archive failed",
				logging.String("run_id", run.ID.String()), logging.Err(err))
		}
	}
	s.publishCompleted(ctx, run)
	s.logger.Info("screening run completed",
		logging.String("run_id", run.ID.String()),
		logging.Int("hits", len(run.Hits)),
		logging.Int("corpus_size", run.CorpusSize))
	return nil
}

// failRun records the failure on the run and reports the original error.
func (s *Service) failRun(ctx context.Context, run *screening.Run, cause error) error {
	if err := run.Fail(s.now(), cause.Error()); err != nil {
		s.logger.Warn("run fail transition rejected",
			logging.String("run_id", run.ID.String()), logging.Err(err))
		return cause
	}
	if err := s.runs.Update(ctx, run); err != nil {
		s.logger.Error("failed run update lost",
			logging.String("run_id", run.ID.String()), logging.Err(err))
	}
	if s.events != nil {
		env, err := kafka.NewEventEnvelope(kafka.TopicScreeningFailed, "worker", kafka.ScreeningFailedPayload{
			RunID:    run.ID.String(),
			Reason:   cause.Error(),
			FailedAt: s.now().UTC(),
		})
		if err == nil {
			err = s.events.PublishEvent(ctx, kafka.TopicScreeningFailed, run.ID.String(), env)
		}
		if err != nil {
			s.logger.Warn("failed event publish failed",
				logging.String("run_id", run.ID.String()), logging.Err(err))
		}
	}
	return cause
}

func (s *Service) publishCompleted(ctx context.Context, run *screening.Run) {
	if s.events == nil {
		return
	}
	env, err := kafka.NewEventEnvelope(kafka.TopicScreeningCompleted, "worker", kafka.ScreeningCompletedPayload{
		RunID:       run.ID.String(),
		HitCount:    len(run.Hits),
		CorpusSize:  run.CorpusSize,
		CompletedAt: s.now().UTC(),
	})
	if err == nil {
		err = s.events.PublishEvent(ctx, kafka.TopicScreeningCompleted, run.ID.String(), env)
	}
	if err != nil {
		s.logger.Warn("completed event publish failed",
			logging.String("run_id", run.ID.String()), logging.Err(err))
	}
}

// GetRun loads one run.
func (s *Service) GetRun(ctx context.Context, runID common.ID) (*screening.Run, error) {
	return s.runs.FindByID(ctx, runID)
}

// ListRuns pages runs, optionally filtered by status.
func (s *Service) ListRuns(ctx context.Context, status screening.RunStatus, page common.Pagination) ([]*screening.Run, int64, error) {
	page.Normalize()
	return s.runs.List(ctx, status, page)
}

// ReportURL presigns a download link for a completed run's archived report.
func (s *Service) ReportURL(ctx context.Context, runID common.ID) (string, error) {
	if s.reports == nil {
		return "", errors.New(errors.ErrCodeServiceUnavailable, "report storage is not configured")
	}
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		return "", err
	}
	if run.Status != screening.StatusCompleted {
		return "", errors.Newf(errors.ErrCodeConflict, "run %s is %s, no report yet", run.ID, run.Status)
	}
	return s.reports.DownloadURL(ctx, runID.String(), reportURLExpiry)
}
