package client

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ---------------------------------------------------------------------------
// Validation helpers
// ---------------------------------------------------------------------------

var inchiKeyRe = regexp.MustCompile(`^[A-Z]{14}-[A-Z]{10}-[A-Z]$`)

// ---------------------------------------------------------------------------
// DTOs: request / response
// ---------------------------------------------------------------------------

// RegisterMoleculeRequest describes a molecule registration.
type RegisterMoleculeRequest struct {
	SMILES   string   `json:"smiles"`
	Name     string   `json:"name,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// RegisterMoleculeResult reports the registered molecule. Created is false
// when the structure was already in the registry.
type RegisterMoleculeResult struct {
	Molecule mtypes.MoleculeDTO `json:"molecule"`
	Created  bool               `json:"created"`
}

// ListMoleculesRequest describes a paged registry listing. Name, when set,
// filters by substring match on molecule names and synonyms.
type ListMoleculesRequest struct {
	Name     string
	Page     int
	PageSize int
}

// LipinskiReport holds the rule-of-five evaluation for one structure.
type LipinskiReport struct {
	MWOk     bool `json:"mw_ok"`
	LogPOk   bool `json:"logp_ok"`
	DonorOk  bool `json:"donor_ok"`
	AccepOk  bool `json:"accep_ok"`
	RotOk    bool `json:"rot_ok"`
	Passed   bool `json:"passed"`
	Failures int  `json:"failures"`
}

// MoleculeProperties is the stateless property calculation for one SMILES.
type MoleculeProperties struct {
	SMILES           string             `json:"smiles"`
	CanonicalSMILES  string             `json:"canonical_smiles"`
	InChIKey         string             `json:"inchi_key"`
	MolecularFormula string             `json:"molecular_formula"`
	Descriptors      mtypes.Descriptors `json:"descriptors"`
	Lipinski         LipinskiReport     `json:"lipinski"`
}

// SimilarMolecule is one fingerprint-index hit for a query structure.
type SimilarMolecule struct {
	InChIKey   string  `json:"inchi_key"`
	SMILES     string  `json:"smiles"`
	Similarity float64 `json:"similarity"`
}

type similarResponse struct {
	Hits  []SimilarMolecule `json:"hits"`
	Count int               `json:"count"`
}

// GraphNeighbor is one similarity-graph edge from a registered molecule.
type GraphNeighbor struct {
	InChIKey string  `json:"inchi_key"`
	SMILES   string  `json:"smiles"`
	Score    float64 `json:"score"`
}

type neighborsResponse struct {
	Neighbors []GraphNeighbor `json:"neighbors"`
	Count     int             `json:"count"`
}

// ---------------------------------------------------------------------------
// Sub-client
// ---------------------------------------------------------------------------

// MoleculesClient talks to the /api/v1/molecules endpoints.
type MoleculesClient struct {
	client *Client
}

// Register parses and persists a molecule. Registration is idempotent on
// the InChIKey; check Created on the result to tell the two apart.
func (m *MoleculesClient) Register(ctx context.Context, req RegisterMoleculeRequest) (*RegisterMoleculeResult, error) {
	if req.SMILES == "" {
		return nil, fmt.Errorf("client: smiles is required")
	}

	var result RegisterMoleculeResult
	if err := m.client.post(ctx, "/api/v1/molecules", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get fetches a registered molecule by InChIKey.
func (m *MoleculesClient) Get(ctx context.Context, inchiKey string) (*mtypes.MoleculeDTO, error) {
	if !inchiKeyRe.MatchString(inchiKey) {
		return nil, fmt.Errorf("client: invalid InChIKey %q", inchiKey)
	}

	var dto mtypes.MoleculeDTO
	if err := m.client.get(ctx, "/api/v1/molecules/"+url.PathEscape(inchiKey), &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// List pages through the registry.
func (m *MoleculesClient) List(ctx context.Context, req ListMoleculesRequest) ([]mtypes.MoleculeDTO, *common.Pagination, error) {
	q := url.Values{}
	if req.Name != "" {
		q.Set("name", req.Name)
	}
	if req.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", req.Page))
	}
	if req.PageSize > 0 {
		q.Set("page_size", fmt.Sprintf("%d", req.PageSize))
	}

	path := "/api/v1/molecules"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Molecules []mtypes.MoleculeDTO `json:"molecules"`
	}
	page, err := m.client.getPaged(ctx, path, &result)
	if err != nil {
		return nil, nil, err
	}
	return result.Molecules, page, nil
}

// Delete removes a molecule and its index entries.
func (m *MoleculesClient) Delete(ctx context.Context, inchiKey string) error {
	if !inchiKeyRe.MatchString(inchiKey) {
		return fmt.Errorf("client: invalid InChIKey %q", inchiKey)
	}
	return m.client.delete(ctx, "/api/v1/molecules/"+url.PathEscape(inchiKey))
}

// Properties computes descriptors and the Lipinski report for a SMILES
// without persisting anything.
func (m *MoleculesClient) Properties(ctx context.Context, smiles string) (*MoleculeProperties, error) {
	if smiles == "" {
		return nil, fmt.Errorf("client: smiles is required")
	}

	body := struct {
		SMILES string `json:"smiles"`
	}{SMILES: smiles}

	var props MoleculeProperties
	if err := m.client.post(ctx, "/api/v1/molecules/properties", body, &props); err != nil {
		return nil, err
	}
	return &props, nil
}

// Similar finds the nearest registered molecules to an arbitrary query
// SMILES via the fingerprint index. topK <= 0 uses the server default.
func (m *MoleculesClient) Similar(ctx context.Context, smiles string, topK int) ([]SimilarMolecule, error) {
	if smiles == "" {
		return nil, fmt.Errorf("client: smiles is required")
	}

	body := struct {
		SMILES string `json:"smiles"`
		TopK   int    `json:"top_k,omitempty"`
	}{SMILES: smiles, TopK: topK}

	var result similarResponse
	if err := m.client.post(ctx, "/api/v1/molecules/similar", body, &result); err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// Neighbors reads the similarity graph for a registered molecule. minScore
// bounds the edge weight and limit caps the result size; zero values use
// the server defaults.
func (m *MoleculesClient) Neighbors(ctx context.Context, inchiKey string, minScore float64, limit int) ([]GraphNeighbor, error) {
	if !inchiKeyRe.MatchString(inchiKey) {
		return nil, fmt.Errorf("client: invalid InChIKey %q", inchiKey)
	}

	q := url.Values{}
	if minScore > 0 {
		q.Set("min_score", fmt.Sprintf("%g", minScore))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	path := "/api/v1/molecules/" + url.PathEscape(inchiKey) + "/neighbors"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result neighborsResponse
	if err := m.client.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Neighbors, nil
}
