package client

import (
	"context"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// DTOs: request / response
// ---------------------------------------------------------------------------

// TrainRequest carries the labelled training set. SMILES and Targets are
// parallel slices.
type TrainRequest struct {
	SMILES  []string  `json:"smiles"`
	Targets []float64 `json:"targets"`
}

// RegressionMetrics holds hold-out or per-fold evaluation numbers.
type RegressionMetrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	N    int     `json:"n"`
}

// TrainResult reports the stored model snapshot and its hold-out
// evaluation.
type TrainResult struct {
	Version     string            `json:"version"`
	Metrics     RegressionMetrics `json:"metrics"`
	TrainedRows int               `json:"trained_rows"`
	SkippedRows int               `json:"skipped_rows"`
	Elapsed     time.Duration     `json:"elapsed"`
}

// Prediction is one scored structure. Failed marks rows whose SMILES did
// not parse; Value is meaningless for those.
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

// CrossValidateResult aggregates k-fold evaluation. No model is stored.
type CrossValidateResult struct {
	FoldMetrics []RegressionMetrics `json:"fold_metrics"`
	MeanRMSE    float64             `json:"mean_rmse"`
	MeanMAE     float64             `json:"mean_mae"`
	MeanR2      float64             `json:"mean_r2"`
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// ToxicityClient talks to the /api/v1/toxicity endpoints.
type ToxicityClient struct {
	client *Client
}

// Train fits a model on the labelled set and stores it as the new latest
// version.
func (t *ToxicityClient) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	if len(req.SMILES) == 0 {
		return nil, fmt.Errorf("client: training set is empty")
	}
	if len(req.SMILES) != len(req.Targets) {
		return nil, fmt.Errorf("client: smiles and targets must have the same length")
	}

	var result TrainResult
	if err := t.client.post(ctx, "/api/v1/toxicity/train", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Predict scores structures with a stored model. An empty version means
// the latest.
func (t *ToxicityClient) Predict(ctx context.Context, smiles []string, version string) (*PredictResult, error) {
	if len(smiles) == 0 {
		return nil, fmt.Errorf("client: no structures to predict")
	}

	body := struct {
		SMILES  []string `json:"smiles"`
		Version string   `json:"version,omitempty"`
	}{SMILES: smiles, Version: version}

	var result PredictResult
	if err := t.client.post(ctx, "/api/v1/toxicity/predict", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CrossValidate runs k-fold evaluation on the labelled set. folds <= 0
// uses the server default.
func (t *ToxicityClient) CrossValidate(ctx context.Context, req TrainRequest, folds int) (*CrossValidateResult, error) {
	if len(req.SMILES) == 0 {
		return nil, fmt.Errorf("client: training set is empty")
	}

	body := struct {
		TrainRequest
		Folds int `json:"folds,omitempty"`
	}{TrainRequest: req, Folds: folds}

	var result CrossValidateResult
	if err := t.client.post(ctx, "/api/v1/toxicity/crossvalidate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Models lists the stored model versions, oldest first.
func (t *ToxicityClient) Models(ctx context.Context) ([]string, error) {
	var result struct {
		Versions []string `json:"versions"`
	}
	if err := t.client.get(ctx, "/api/v1/toxicity/models", &result); err != nil {
		return nil, err
	}
	return result.Versions, nil
}
