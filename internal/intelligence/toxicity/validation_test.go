package toxicity

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

func TestEvaluate(t *testing.T) {
	m, err := Evaluate([]float64{1, 2, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, m.RMSE)
	assert.Zero(t, m.MAE)
	assert.InDelta(t, 1.0, m.R2, 1e-12)
	assert.Equal(t, 3, m.N)

	// Constant offset of 1: RMSE = MAE = 1.
	m, err = Evaluate([]float64{2, 3, 4}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.RMSE, 1e-12)
	assert.InDelta(t, 1.0, m.MAE, 1e-12)

	// Constant target: R2 pinned to 0, not NaN.
	m, err = Evaluate([]float64{1, 2}, []float64{5, 5})
	require.NoError(t, err)
	assert.Zero(t, m.R2)

	_, err = Evaluate([]float64{1}, []float64{1, 2})
	assert.True(t, errors.IsCode(err, errors.ErrCodePredictionFailed))
	_, err = Evaluate(nil, nil)
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	split, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, split.TestIdx, 20)
	assert.Len(t, split.TrainIdx, 80)

	// Partitions must be disjoint and cover all rows.
	all := append(append([]int{}, split.TrainIdx...), split.TestIdx...)
	sort.Ints(all)
	for i, v := range all {
		assert.Equal(t, i, v)
	}

	// Deterministic for a fixed seed.
	again, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, split.TestIdx, again.TestIdx)

	// Tiny sets still produce non-empty partitions.
	small, err := TrainTestSplit(2, 0.5, 1)
	require.NoError(t, err)
	assert.Len(t, small.TestIdx, 1)
	assert.Len(t, small.TrainIdx, 1)
}

func TestTrainTestSplitInvalid(t *testing.T) {
	_, err := TrainTestSplit(1, 0.2, 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTrainingDataInvalid))
	_, err = TrainTestSplit(10, 0, 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTrainingDataInvalid))
	_, err = TrainTestSplit(10, 1, 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTrainingDataInvalid))
}

func TestKFold(t *testing.T) {
	splits, err := KFold(10, 3, 7)
	require.NoError(t, err)
	require.Len(t, splits, 3)

	// Every row appears exactly once as test data.
	var testRows []int
	for _, s := range splits {
		testRows = append(testRows, s.TestIdx...)
		assert.Equal(t, 10, len(s.TrainIdx)+len(s.TestIdx))
	}
	sort.Ints(testRows)
	require.Len(t, testRows, 10)
	for i, v := range testRows {
		assert.Equal(t, i, v)
	}

	// Fold sizes differ by at most one.
	for _, s := range splits {
		assert.InDelta(t, 10.0/3.0, float64(len(s.TestIdx)), 1.0)
	}
}

func TestKFoldInvalid(t *testing.T) {
	_, err := KFold(10, 1, 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFoldsInvalid))
	_, err = KFold(3, 5, 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFoldsInvalid))
}

func TestCrossValidate(t *testing.T) {
	X, y := syntheticData(200, 8)
	res, err := CrossValidate(X, y, 4, ForestConfig{NumTrees: 20, MaxDepth: 10, Seed: 2, FeatureRatio: 1})
	require.NoError(t, err)

	require.Len(t, res.FoldMetrics, 4)
	assert.Greater(t, res.MeanR2, 0.7, "mean R2 = %v", res.MeanR2)
	assert.Greater(t, res.MeanRMSE, 0.0)

	var sum float64
	for _, m := range res.FoldMetrics {
		sum += m.RMSE
	}
	assert.InDelta(t, sum/4, res.MeanRMSE, 1e-12)
}

func TestCrossValidateInvalidFolds(t *testing.T) {
	X, y := syntheticData(20, 9)
	_, err := CrossValidate(X, y, 1, ForestConfig{NumTrees: 2})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFoldsInvalid))
}
