package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToxicity_Train(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/toxicity/train", r.URL.Path)

		var req TrainRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.SMILES, 3)

		writeData(t, w, http.StatusCreated, map[string]interface{}{
			"version":      "20250301T120000Z",
			"metrics":      map[string]interface{}{"rmse": 0.42, "mae": 0.31, "r2": 0.77, "n": 1},
			"trained_rows": 3,
			"skipped_rows": 0,
		})
	})

	result, err := c.Toxicity().Train(context.Background(), TrainRequest{
		SMILES:  []string{"C", "CC", "CCO"},
		Targets: []float64{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.Equal(t, "20250301T120000Z", result.Version)
	assert.InDelta(t, 0.42, result.Metrics.RMSE, 1e-9)
	assert.Equal(t, 3, result.TrainedRows)
}

func TestToxicity_TrainValidatesInput(t *testing.T) {
	c, err := NewClient("http://api.example.com")
	require.NoError(t, err)

	_, err = c.Toxicity().Train(context.Background(), TrainRequest{})
	assert.ErrorContains(t, err, "training set is empty")

	_, err = c.Toxicity().Train(context.Background(), TrainRequest{
		SMILES:  []string{"C", "CC"},
		Targets: []float64{0.1},
	})
	assert.ErrorContains(t, err, "same length")
}

func TestToxicity_Predict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/toxicity/predict", r.URL.Path)

		var req struct {
			SMILES  []string `json:"smiles"`
			Version string   `json:"version"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "v3", req.Version)

		writeData(t, w, http.StatusOK, map[string]interface{}{
			"version": "v3",
			"predictions": []map[string]interface{}{
				{"smiles": "CCO", "value": 0.27},
				{"smiles": "C(C", "value": 0, "failed": true, "error": "unbalanced parentheses"},
			},
			"failed": 1,
		})
	})

	result, err := c.Toxicity().Predict(context.Background(), []string{"CCO", "C(C"}, "v3")
	require.NoError(t, err)
	require.Len(t, result.Predictions, 2)
	assert.InDelta(t, 0.27, result.Predictions[0].Value, 1e-9)
	assert.True(t, result.Predictions[1].Failed)
	assert.Equal(t, 1, result.Failed)
}

func TestToxicity_CrossValidate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/toxicity/crossvalidate", r.URL.Path)

		var req struct {
			Folds int `json:"folds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.Folds)

		writeData(t, w, http.StatusOK, map[string]interface{}{
			"fold_metrics": []map[string]interface{}{
				{"rmse": 0.5, "mae": 0.4, "r2": 0.6, "n": 2},
				{"rmse": 0.3, "mae": 0.2, "r2": 0.8, "n": 2},
			},
			"mean_rmse": 0.4,
			"mean_mae":  0.3,
			"mean_r2":   0.7,
		})
	})

	result, err := c.Toxicity().CrossValidate(context.Background(), TrainRequest{
		SMILES:  []string{"C", "CC", "CCO", "CCC"},
		Targets: []float64{0.1, 0.2, 0.3, 0.4},
	}, 5)
	require.NoError(t, err)
	assert.Len(t, result.FoldMetrics, 2)
	assert.InDelta(t, 0.4, result.MeanRMSE, 1e-9)
}

func TestToxicity_Models(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/toxicity/models", r.URL.Path)
		writeData(t, w, http.StatusOK, map[string]interface{}{
			"versions": []string{"v1", "v2", "v3"},
		})
	})

	versions, err := c.Toxicity().Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3"}, versions)
}

func TestToxicity_ModelNotTrained(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(t, w, http.StatusConflict, "MODEL_NOT_TRAINED", "no stored model versions")
	})

	_, err := c.Toxicity().Predict(context.Background(), []string{"CCO"}, "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsConflict())
	assert.Equal(t, "MODEL_NOT_TRAINED", apiErr.Code)
}
