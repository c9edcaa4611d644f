package chembl

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

// Molecule is the subset of the ChEMBL molecule record the platform consumes.
type Molecule struct {
	ChEMBLID        string
	PrefName        string
	CanonicalSMILES string
	InChIKey        string
	MolecularWeight float64
	ALogP           float64
	HBD             int
	HBA             int
	PSA             float64
	RO5Violations   int
}

// SimilarityHit is one candidate from a ChEMBL 2D similarity search.
type SimilarityHit struct {
	ChEMBLID        string
	CanonicalSMILES string
	Similarity      float64
}

type moleculeRecord struct {
	MoleculeChEMBLID string `json:"molecule_chembl_id"`
	PrefName         string `json:"pref_name"`
	Structures       *struct {
		CanonicalSMILES string `json:"canonical_smiles"`
		StandardInChIKey string `json:"standard_inchi_key"`
	} `json:"molecule_structures"`
	Properties *struct {
		FullMWT       string `json:"full_mwt"`
		ALogP         string `json:"alogp"`
		HBD           string `json:"hbd"`
		HBA           string `json:"hba"`
		PSA           string `json:"psa"`
		RO5Violations string `json:"num_ro5_violations"`
	} `json:"molecule_properties"`
	Similarity string `json:"similarity"`
}

type moleculesPage struct {
	Molecules []moleculeRecord `json:"molecules"`
}

// GetMolecule fetches one molecule by its ChEMBL identifier, e.g. CHEMBL25.
func (c *Client) GetMolecule(ctx context.Context, chemblID string) (*Molecule, error) {
	chemblID = strings.TrimSpace(strings.ToUpper(chemblID))
	if chemblID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "chembl id is required")
	}

	var rec moleculeRecord
	path := fmt.Sprintf("/molecule/%s.json", url.PathEscape(chemblID))
	if err := c.get(ctx, path, nil, &rec); err != nil {
		return nil, err
	}
	mol := rec.toMolecule()
	if mol.CanonicalSMILES == "" {
		return nil, errors.New(errors.ErrCodeProviderBadResponse, "chembl record has no structure").
			WithDetailf("chembl_id=%s", chemblID)
	}
	return mol, nil
}

// SimilaritySearch finds molecules at least minSimilarity percent similar to
// the query SMILES. minSimilarity is an integer percentage in [40, 100] as
// required by the ChEMBL endpoint. Results keep the server's score order.
func (c *Client) SimilaritySearch(ctx context.Context, smiles string, minSimilarity int) ([]SimilarityHit, error) {
	if strings.TrimSpace(smiles) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "query smiles is required")
	}
	if minSimilarity < 40 || minSimilarity > 100 {
		return nil, errors.New(errors.ErrCodeValidation, "similarity cutoff must be in [40, 100]").
			WithDetailf("cutoff=%d", minSimilarity)
	}

	var page moleculesPage
	path := fmt.Sprintf("/similarity/%s/%d.json", url.PathEscape(smiles), minSimilarity)
	if err := c.get(ctx, path, nil, &page); err != nil {
		return nil, err
	}

	hits := make([]SimilarityHit, 0, len(page.Molecules))
	for _, rec := range page.Molecules {
		hit := SimilarityHit{ChEMBLID: rec.MoleculeChEMBLID}
		if rec.Structures != nil {
			hit.CanonicalSMILES = rec.Structures.CanonicalSMILES
		}
		if score, err := strconv.ParseFloat(rec.Similarity, 64); err == nil {
			hit.Similarity = score / 100
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (r *moleculeRecord) toMolecule() *Molecule {
	mol := &Molecule{
		ChEMBLID: r.MoleculeChEMBLID,
		PrefName: r.PrefName,
	}
	if r.Structures != nil {
		mol.CanonicalSMILES = r.Structures.CanonicalSMILES
		mol.InChIKey = r.Structures.StandardInChIKey
	}
	if r.Properties != nil {
		mol.MolecularWeight = parseFloat(r.Properties.FullMWT)
		mol.ALogP = parseFloat(r.Properties.ALogP)
		mol.HBD = parseInt(r.Properties.HBD)
		mol.HBA = parseInt(r.Properties.HBA)
		mol.PSA = parseFloat(r.Properties.PSA)
		mol.RO5Violations = parseInt(r.Properties.RO5Violations)
	}
	return mol
}

// ChEMBL serializes numeric properties as strings; absent values decode to 0.
func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
