package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apptox "github.com/turtacn/ChemScreen/internal/application/toxicity"
	"github.com/turtacn/ChemScreen/internal/intelligence/toxicity"
)

// ToxicityService is the slice of the toxicity application service the HTTP
// layer depends on.
type ToxicityService interface {
	Train(ctx context.Context, in apptox.TrainInput) (*apptox.TrainResult, error)
	Predict(ctx context.Context, smiles []string, version string) (*apptox.PredictResult, error)
	CrossValidate(ctx context.Context, in apptox.TrainInput, folds int) (*toxicity.CVResult, error)
	Versions(ctx context.Context) ([]string, error)
}

// ToxicityHandler serves the toxicity model endpoints.
type ToxicityHandler struct {
	svc ToxicityService
}

func NewToxicityHandler(svc ToxicityService) *ToxicityHandler {
	return &ToxicityHandler{svc: svc}
}

// Train handles POST /api/v1/toxicity/train.
func (h *ToxicityHandler) Train(c *gin.Context) {
	var in apptox.TrainInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if len(in.SMILES) == 0 {
		respondValidation(c, "smiles is required")
		return
	}

	result, err := h.svc.Train(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, result)
}

// PredictRequest is the body for batch prediction. Version is optional and
// defaults to the latest stored model.
type PredictRequest struct {
	SMILES  []string `json:"smiles"`
	Version string   `json:"version,omitempty"`
}

// Predict handles POST /api/v1/toxicity/predict.
func (h *ToxicityHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "invalid request body")
		return
	}

	result, err := h.svc.Predict(c.Request.Context(), req.SMILES, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// CrossValidateRequest is the body for k-fold evaluation; no model is stored.
type CrossValidateRequest struct {
	apptox.TrainInput
	Folds int `json:"folds,omitempty"`
}

// CrossValidate handles POST /api/v1/toxicity/crossvalidate.
func (h *ToxicityHandler) CrossValidate(c *gin.Context) {
	var req CrossValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if len(req.SMILES) == 0 {
		respondValidation(c, "smiles is required")
		return
	}

	result, err := h.svc.CrossValidate(c.Request.Context(), req.TrainInput, req.Folds)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Models handles GET /api/v1/toxicity/models, listing stored versions.
func (h *ToxicityHandler) Models(c *gin.Context) {
	versions, err := h.svc.Versions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"versions": versions})
}
