package toxicity

import (
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Random Forest Regressor
// ─────────────────────────────────────────────────────────────────────────────

// ForestConfig holds the training hyperparameters of a forest.
type ForestConfig struct {
	NumTrees    int     `json:"num_trees"`
	MaxDepth    int     `json:"max_depth"`
	MinLeafSize int     `json:"min_leaf_size"`
	// FeatureRatio is the fraction of features examined per split, the
	// classic knob trading tree correlation against strength. Zero defaults
	// to one third.
	FeatureRatio float64 `json:"feature_ratio"`
	Seed         int64   `json:"seed"`
}

func (c *ForestConfig) applyDefaults() {
	if c.NumTrees == 0 {
		c.NumTrees = 100
	}
	if c.MinLeafSize == 0 {
		c.MinLeafSize = 2
	}
	if c.FeatureRatio == 0 {
		c.FeatureRatio = 1.0 / 3.0
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

func (c ForestConfig) validate() error {
	if c.NumTrees < 1 {
		return errors.Newf(errors.ErrCodeTrainingDataInvalid, "num_trees must be >= 1, got %d", c.NumTrees)
	}
	if c.FeatureRatio < 0 || c.FeatureRatio > 1 {
		return errors.Newf(errors.ErrCodeTrainingDataInvalid,
			"feature_ratio must be in (0, 1], got %g", c.FeatureRatio)
	}
	if c.MinLeafSize < 1 {
		return errors.Newf(errors.ErrCodeTrainingDataInvalid, "min_leaf_size must be >= 1, got %d", c.MinLeafSize)
	}
	return nil
}

// Forest is a trained Random-Forest regressor: bootstrap-sampled CART trees
// whose predictions are averaged. A Forest is safe for concurrent Predict
// calls once trained.
type Forest struct {
	Config      ForestConfig `json:"config"`
	NumFeatures int          `json:"num_features"`
	Trees       []*treeNode  `json:"trees"`
	TrainedAt   time.Time    `json:"trained_at"`
}

// Train fits a forest on the feature matrix X and target vector y. Each tree
// sees a bootstrap sample of the rows and examines FeatureRatio of the
// features at each split. The same config (including Seed) on the same data
// reproduces the same forest.
func Train(X [][]float64, y []float64, cfg ForestConfig) (*Forest, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, errors.Newf(errors.ErrCodeTrainingDataInvalid,
			"feature matrix has %d rows, target has %d", len(X), len(y))
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return nil, errors.New(errors.ErrCodeTrainingDataInvalid, "feature matrix has no columns")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, errors.Newf(errors.ErrCodeTrainingDataInvalid,
				"row %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}

	featuresPerSplit := int(math.Ceil(cfg.FeatureRatio * float64(nFeatures)))
	params := treeParams{
		maxDepth:         cfg.MaxDepth,
		minLeafSize:      cfg.MinLeafSize,
		featuresPerSplit: featuresPerSplit,
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	forest := &Forest{
		Config:      cfg,
		NumFeatures: nFeatures,
		Trees:       make([]*treeNode, cfg.NumTrees),
		TrainedAt:   time.Now().UTC(),
	}

	n := len(X)
	for t := 0; t < cfg.NumTrees; t++ {
		// Bootstrap sample with replacement.
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		forest.Trees[t] = fitTree(X, y, idx, params, rng)
	}
	return forest, nil
}

// Predict returns the mean prediction over all trees for one feature vector.
func (f *Forest) Predict(x []float64) (float64, error) {
	if f == nil || len(f.Trees) == 0 {
		return 0, errors.New(errors.ErrCodeModelNotTrained, "forest has no trees")
	}
	if len(x) != f.NumFeatures {
		return 0, errors.Newf(errors.ErrCodePredictionFailed,
			"feature vector has %d features, model expects %d", len(x), f.NumFeatures)
	}
	var sum float64
	for _, tree := range f.Trees {
		sum += tree.predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictBatch predicts for each row of X.
func (f *Forest) PredictBatch(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		p, err := f.Predict(x)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Serialization
// ─────────────────────────────────────────────────────────────────────────────

// Marshal serializes the forest to JSON for the model store.
func (f *Forest) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshaling forest")
	}
	return data, nil
}

// Unmarshal restores a forest from its JSON form.
func Unmarshal(data []byte) (*Forest, error) {
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "unmarshaling forest")
	}
	if len(f.Trees) == 0 {
		return nil, errors.New(errors.ErrCodeModelNotTrained, "serialized forest has no trees")
	}
	return &f, nil
}
