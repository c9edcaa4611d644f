// Package toxicity is the application service around the Random-Forest
// regressor: training with hold-out evaluation, versioned model storage,
// prediction, and k-fold cross-validation.
package toxicity

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/internal/intelligence/toxicity"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ModelName is the key all forest snapshots are stored under.
const ModelName = "toxicity-rf"

// latestVersion selects the most recent snapshot when no version is given.
const latestVersion = "latest"

// featureBits is the Morgan fingerprint width used for featurization. It is
// baked into stored models, so changing it invalidates every snapshot.
const featureBits = 2048

// ModelStore persists serialized forest snapshots.
type ModelStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Load(ctx context.Context, name, version string) ([]byte, error)
	Versions(ctx context.Context, name string) ([]string, error)
}

// Service trains, stores and serves toxicity models.
type Service struct {
	store  ModelStore
	cfg    config.ToxicityConfig
	logger logging.Logger

	mu     sync.RWMutex
	cached *toxicity.Forest
	// cachedVersion tracks which snapshot is loaded so Predict can reuse it.
	cachedVersion string
}

func NewService(store ModelStore, cfg config.ToxicityConfig, log logging.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New(errors.ErrCodeValidation, "model store is required")
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}
	if cfg.CVFolds <= 1 {
		cfg.CVFolds = 5
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: log.Named("toxicity_service"),
	}, nil
}

func (s *Service) forestConfig() toxicity.ForestConfig {
	return toxicity.ForestConfig{
		NumTrees:     s.cfg.NumTrees,
		MaxDepth:     s.cfg.MaxDepth,
		MinLeafSize:  s.cfg.MinLeafSize,
		FeatureRatio: s.cfg.FeatureRatio,
		Seed:         s.cfg.Seed,
	}
}

/// TrainInput is a labeled training set: one target value per SMILES.
type TrainInput struct {
	SMILES  []string  `json:"smiles"`
	Targets []float64 `json:"targets"`
}

// TrainResult reports the stored snapshot and its hold-out evaluation.
type TrainResult struct {
	Version     string           `json:"version"`
	Metrics     toxicity.Metrics `json:"metrics"`
	TrainedRows int              `json:"trained_rows"`
	SkippedRows int              `json:"skipped_rows"`
	Elapsed     time.Duration    `json:"elapsed"`
}

// Train fits a forest on the input, evaluates it on a held-out fraction, and
// stores the snapshot as the new latest version.
func (s *Service) Train(ctx context.Context, in TrainInput) (*TrainResult, error) {
	started := time.Now()

	ds, err := toxicity.BuildDataset(in.SMILES, in.Targets, mtypes.FingerprintMorgan, featureBits)
	if err != nil {
		return nil, err
	}

	forest, metrics, err := toxicity.HoldOut(ds.X, ds.Y, s.cfg.TestFraction, s.forestConfig())
	if err != nil {
		return nil, err
	}

	data, err := forest.Marshal()
	if err != nil {
		return nil, err
	}
	version, err := s.store.Save(ctx, ModelName, data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = forest
	s.cachedVersion = version
	s.mu.Unlock()

	s.logger.Info("toxicity model trained",
		logging.String("version", version),
		logging.Int("rows", len(ds.X)),
		logging.Int("skipped", ds.Skipped),
		logging.Float64("rmse", metrics.RMSE))
	return &TrainResult{
		Version:     version,
		Metrics:     metrics,
		TrainedRows: len(ds.X),
		SkippedRows: ds.Skipped,
		Elapsed:     time.Since(started),
	}, nil
}

func (s *Service) forest(ctx context.Context, version string) (*toxicity.Forest, string, error) {
	if version == "" {
		version = latestVersion
	}

	s.mu.RLock()
	if s.cached != nil && (s.cachedVersion == version || version == latestVersion) {
		f, v := s.cached, s.cachedVersion
		s.mu.RUnlock()
		return f, v, nil
	}
	s.mu.RUnlock()

	data, err := s.store.Load(ctx, ModelName, version)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, "", errors.Newf(errors.ErrCodeModelNotTrained,
				"no toxicity model stored under version %q", version)
		}
		return nil, "", err
	}
	forest, err := toxicity.Unmarshal(data)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	s.cached = forest
	s.cachedVersion = version
	s.mu.Unlock()
	return forest, version, nil
}

// Prediction is one per-structure prediction. Failed rows carry the error
// instead of aborting the batch.
type Prediction struct {
	SMILES string  `json:"smiles"`
	Value  float64 `json:"value"`
	Failed bool    `json:"failed,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// PredictResult reports batch predictions and the model version that made
// them.
type PredictResult struct {
	Version     string       `json:"version"`
	Predictions []Prediction `json:"predictions"`
	Failed      int          `json:"failed"`
}

// Predict scores structures with a stored model. Version empty means latest.
func (s *Service) Predict(ctx context.Context, smiles []string, version string) (*PredictResult, error) {
	if len(smiles) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no structures to predict")
	}
	forest, usedVersion, err := s.forest(ctx, version)
	if err != nil {
		return nil, err
	}

	res := &PredictResult{Version: usedVersion, Predictions: make([]Prediction, 0, len(smiles))}
	for _, smi := range smiles {
		p := Prediction{SMILES: smi}
		value, err := s.predictOne(forest, smi)
		if err != nil {
			p.Failed = true
			p.Error = err.Error()
			res.Failed++
		} else {
			p.Value = value
		}
		res.Predictions = append(res.Predictions, p)
	}
	return res, nil
}

func (s *Service) predictOne(forest *toxicity.Forest, smiles string) (float64, error) {
	mol, err := molecule.NewMolecule(smiles)
	if err != nil {
		return 0, err
	}
	row, err := toxicity.FeaturizeMolecule(mol, mtypes.FingerprintMorgan, featureBits)
	if err != nil {
		return 0, err
	}
	return forest.Predict(row)
}

// CrossValidate runs k-fold cross-validation on a labeled set without
// storing a model. Folds zero means the configured default.
func (s *Service) CrossValidate(_ context.Context, in TrainInput, folds int) (*toxicity.CVResult, error) {
	if folds <= 0 {
		folds = s.cfg.CVFolds
	}
	ds, err := toxicity.BuildDataset(in.SMILES, in.Targets, mtypes.FingerprintMorgan, featureBits)
	if err != nil {
		return nil, err
	}
	result, err := toxicity.CrossValidate(ds.X, ds.Y, folds, s.forestConfig())
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Versions lists the stored model snapshots.
func (s *Service) Versions(ctx context.Context) ([]string, error) {
	return s.store.Versions(ctx, ModelName)
}
