package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appmol "github.com/turtacn/ChemScreen/internal/application/molecule"
	"github.com/turtacn/ChemScreen/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// MoleculeService is the slice of the molecule application service the
// HTTP layer depends on.
type MoleculeService interface {
	Register(ctx context.Context, in appmol.RegisterInput) (*appmol.RegisterResult, error)
	Get(ctx context.Context, inchiKey string) (*mtypes.MoleculeDTO, error)
	List(ctx context.Context, name string, page common.Pagination) (*appmol.ListResult, error)
	Delete(ctx context.Context, inchiKey string) error
	Properties(ctx context.Context, smiles string) (*appmol.Properties, error)
	FindSimilar(ctx context.Context, smiles string, topK int) ([]appmol.SimilarMolecule, error)
	GraphNeighbors(ctx context.Context, inchiKey string, minScore float64, limit int) ([]repositories.SimilarNeighbor, error)
}

// MoleculeHandler serves the molecule registry endpoints.
type MoleculeHandler struct {
	svc MoleculeService
}

func NewMoleculeHandler(svc MoleculeService) *MoleculeHandler {
	return &MoleculeHandler{svc: svc}
}

// Register handles POST /api/v1/molecules.
func (h *MoleculeHandler) Register(c *gin.Context) {
	var in appmol.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if in.SMILES == "" {
		respondValidation(c, "smiles is required")
		return
	}

	result, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	respond(c, status, result)
}

// Get handles GET /api/v1/molecules/:inchikey.
func (h *MoleculeHandler) Get(c *gin.Context) {
	dto, err := h.svc.Get(c.Request.Context(), c.Param("inchikey"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, dto)
}

// List handles GET /api/v1/molecules with optional name filter.
func (h *MoleculeHandler) List(c *gin.Context) {
	page := parsePagination(c)
	result, err := h.svc.List(c.Request.Context(), c.Query("name"), page)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, result.Molecules, result.Page)
}

// Delete handles DELETE /api/v1/molecules/:inchikey.
func (h *MoleculeHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("inchikey")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PropertiesRequest is the body for the stateless property calculator.
type PropertiesRequest struct {
	SMILES string `json:"smiles"`
}

// Properties handles POST /api/v1/molecules/properties. Nothing is persisted;
// the endpoint parses the structure and returns descriptors plus the Lipinski
// report.
func (h *MoleculeHandler) Properties(c *gin.Context) {
	var req PropertiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if req.SMILES == "" {
		respondValidation(c, "smiles is required")
		return
	}

	props, err := h.svc.Properties(c.Request.Context(), req.SMILES)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, props)
}

// SimilarRequest is the body for the registry similarity lookup.
type SimilarRequest struct {
	SMILES string `json:"smiles"`
	TopK   int    `json:"top_k,omitempty"`
}

// FindSimilar handles POST /api/v1/molecules/similar.
func (h *MoleculeHandler) FindSimilar(c *gin.Context) {
	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if req.SMILES == "" {
		respondValidation(c, "smiles is required")
		return
	}

	hits, err := h.svc.FindSimilar(c.Request.Context(), req.SMILES, req.TopK)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"hits": hits, "count": len(hits)})
}

// Neighbors handles GET /api/v1/molecules/:inchikey/neighbors, reading the
// similarity graph rather than the fingerprint index.
func (h *MoleculeHandler) Neighbors(c *gin.Context) {
	minScore := 0.0
	if v := c.Query("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			respondValidation(c, "min_score must be a number between 0 and 1")
			return
		}
		minScore = f
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondValidation(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	neighbors, err := h.svc.GraphNeighbors(c.Request.Context(), c.Param("inchikey"), minScore, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"neighbors": neighbors, "count": len(neighbors)})
}
