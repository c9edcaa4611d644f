package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appmol "github.com/turtacn/ChemScreen/internal/application/molecule"
	"github.com/turtacn/ChemScreen/internal/providers/chembl"
	"github.com/turtacn/ChemScreen/internal/providers/pubchem"
)

// ChEMBLProvider fetches molecule records from the ChEMBL REST API.
type ChEMBLProvider interface {
	GetMolecule(ctx context.Context, chemblID string) (*chembl.Molecule, error)
}

// PubChemProvider resolves names to CIDs and fetches compound properties
// from PUG REST.
type PubChemProvider interface {
	ResolveCID(ctx context.Context, name string) (int, error)
	GetProperties(ctx context.Context, cid int) (*pubchem.CompoundProperties, error)
}

// Registrar is the registration slice of the molecule service used when
// importing external records.
type Registrar interface {
	Register(ctx context.Context, in appmol.RegisterInput) (*appmol.RegisterResult, error)
}

// ImportHandler pulls structures from public databases into the registry.
type ImportHandler struct {
	chembl  ChEMBLProvider
	pubchem PubChemProvider
	reg     Registrar
}

func NewImportHandler(chemblClient ChEMBLProvider, pubchemClient PubChemProvider, reg Registrar) *ImportHandler {
	return &ImportHandler{chembl: chemblClient, pubchem: pubchemClient, reg: reg}
}

// FromChEMBL handles POST /api/v1/import/chembl/:id. The local parser
// recomputes descriptors from the fetched SMILES, so only the structure and
// naming survive the import.
func (h *ImportHandler) FromChEMBL(c *gin.Context) {
	chemblID := c.Param("id")
	if chemblID == "" {
		respondValidation(c, "chembl id is required")
		return
	}

	record, err := h.chembl.GetMolecule(c.Request.Context(), chemblID)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.reg.Register(c.Request.Context(), appmol.RegisterInput{
		SMILES: record.CanonicalSMILES,
		Name:   record.PrefName,
		Source: "chembl:" + record.ChEMBLID,
	})
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

// PubChemImportRequest identifies a compound either directly by CID or by a
// name resolved through PUG REST.
type PubChemImportRequest struct {
	CID  int    `json:"cid,omitempty"`
	Name string `json:"name,omitempty"`
}

// FromPubChem handles POST /api/v1/import/pubchem.
func (h *ImportHandler) FromPubChem(c *gin.Context) {
	var req PubChemImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "invalid request body")
		return
	}
	if req.CID == 0 && req.Name == "" {
		respondValidation(c, "either cid or name is required")
		return
	}

	ctx := c.Request.Context()
	cid := req.CID
	if cid == 0 {
		resolved, err := h.pubchem.ResolveCID(ctx, req.Name)
		if err != nil {
			respondError(c, err)
			return
		}
		cid = resolved
	}

	props, err := h.pubchem.GetProperties(ctx, cid)
	if err != nil {
		respondError(c, err)
		return
	}

	name := req.Name
	if name == "" {
		name = props.IUPACName
	}
	result, err := h.reg.Register(ctx, appmol.RegisterInput{
		SMILES: props.CanonicalSMILES,
		Name:   name,
		Source: "pubchem:" + strconv.Itoa(props.CID),
	})
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
