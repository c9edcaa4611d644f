package toxicity

import (
	"math"
	"math/rand"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Metrics
// ─────────────────────────────────────────────────────────────────────────────

// Metrics reports regression quality on a held-out set.
type Metrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	N    int     `json:"n"`
}

// Evaluate computes RMSE, MAE, and R² between predictions and true targets.
// R² is 1 for a perfect fit and can go negative for models worse than the
// mean predictor; a constant target yields R² = 0 by convention.
func Evaluate(predicted, actual []float64) (Metrics, error) {
	if len(predicted) != len(actual) || len(predicted) == 0 {
		return Metrics{}, errors.Newf(errors.ErrCodePredictionFailed,
			"prediction/target length mismatch: %d vs %d", len(predicted), len(actual))
	}

	n := float64(len(actual))
	var mean float64
	for _, v := range actual {
		mean += v
	}
	mean /= n

	var sse, sae, sst float64
	for i := range actual {
		d := predicted[i] - actual[i]
		sse += d * d
		sae += math.Abs(d)
		t := actual[i] - mean
		sst += t * t
	}

	m := Metrics{
		RMSE: math.Sqrt(sse / n),
		MAE:  sae / n,
		N:    len(actual),
	}
	if sst > 0 {
		m.R2 = 1 - sse/sst
	}
	return m, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Train/Test Split
// ─────────────────────────────────────────────────────────────────────────────

// Split holds row indices of one train/test partition.
type Split struct {
	TrainIdx []int
	TestIdx  []int
}

// TrainTestSplit shuffles row indices with the given seed and reserves
// testFraction of them for testing. Both partitions are always non-empty.
func TrainTestSplit(n int, testFraction float64, seed int64) (Split, error) {
	if n < 2 {
		return Split{}, errors.Newf(errors.ErrCodeTrainingDataInvalid,
			"need at least 2 rows to split, got %d", n)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return Split{}, errors.Newf(errors.ErrCodeTrainingDataInvalid,
			"test_fraction must be in (0, 1), got %g", testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Round(testFraction * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}
	return Split{
		TestIdx:  perm[:nTest],
		TrainIdx: perm[nTest:],
	}, nil
}

// KFold produces k shuffled folds covering every row exactly once as test
// data. Fold sizes differ by at most one row.
func KFold(n, k int, seed int64) ([]Split, error) {
	if k < 2 {
		return nil, errors.Newf(errors.ErrCodeValidationFoldsInvalid,
			"cross-validation needs k >= 2, got %d", k)
	}
	if k > n {
		return nil, errors.Newf(errors.ErrCodeValidationFoldsInvalid,
			"k = %d exceeds row count %d", k, n)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	splits := make([]Split, k)
	for fold := 0; fold < k; fold++ {
		lo := fold * n / k
		hi := (fold + 1) * n / k
		test := perm[lo:hi]
		train := make([]int, 0, n-len(test))
		train = append(train, perm[:lo]...)
		train = append(train, perm[hi:]...)
		splits[fold] = Split{TrainIdx: train, TestIdx: test}
	}
	return splits, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation Drivers
// ─────────────────────────────────────────────────────────────────────────────

func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

// HoldOut trains on a train/test split and evaluates on the held-out rows.
func HoldOut(X [][]float64, y []float64, testFraction float64, cfg ForestConfig) (*Forest, Metrics, error) {
	split, err := TrainTestSplit(len(X), testFraction, cfg.Seed)
	if err != nil {
		return nil, Metrics{}, err
	}

	trainX, trainY := subset(X, y, split.TrainIdx)
	forest, err := Train(trainX, trainY, cfg)
	if err != nil {
		return nil, Metrics{}, err
	}

	testX, testY := subset(X, y, split.TestIdx)
	pred, err := forest.PredictBatch(testX)
	if err != nil {
		return nil, Metrics{}, err
	}
	m, err := Evaluate(pred, testY)
	return forest, m, err
}

// CVResult reports per-fold and mean metrics of a cross-validation.
type CVResult struct {
	FoldMetrics []Metrics `json:"fold_metrics"`
	MeanRMSE    float64   `json:"mean_rmse"`
	MeanMAE     float64   `json:"mean_mae"`
	MeanR2      float64   `json:"mean_r2"`
}

// CrossValidate runs k-fold cross-validation, training one forest per fold.
func CrossValidate(X [][]float64, y []float64, k int, cfg ForestConfig) (CVResult, error) {
	splits, err := KFold(len(X), k, cfg.Seed)
	if err != nil {
		return CVResult{}, err
	}

	result := CVResult{FoldMetrics: make([]Metrics, 0, k)}
	for _, split := range splits {
		trainX, trainY := subset(X, y, split.TrainIdx)
		forest, err := Train(trainX, trainY, cfg)
		if err != nil {
			return CVResult{}, err
		}
		testX, testY := subset(X, y, split.TestIdx)
		pred, err := forest.PredictBatch(testX)
		if err != nil {
			return CVResult{}, err
		}
		m, err := Evaluate(pred, testY)
		if err != nil {
			return CVResult{}, err
		}
		result.FoldMetrics = append(result.FoldMetrics, m)
		result.MeanRMSE += m.RMSE
		result.MeanMAE += m.MAE
		result.MeanR2 += m.R2
	}
	nf := float64(len(result.FoldMetrics))
	result.MeanRMSE /= nf
	result.MeanMAE /= nf
	result.MeanR2 /= nf
	return result, nil
}
