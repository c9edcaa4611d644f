package pubchem

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

// CompoundProperties is the property set fetched per CID. PubChem serializes
// some numerics as strings, so the decode types are json.Number.
type CompoundProperties struct {
	CID                int         `json:"CID"`
	CanonicalSMILES    string      `json:"CanonicalSMILES"`
	InChIKey           string      `json:"InChIKey"`
	IUPACName          string      `json:"IUPACName"`
	MolecularFormula   string      `json:"MolecularFormula"`
	MolecularWeight    json.Number `json:"MolecularWeight"`
	XLogP              json.Number `json:"XLogP"`
	TPSA               json.Number `json:"TPSA"`
	HBondDonorCount    int         `json:"HBondDonorCount"`
	HBondAcceptorCount int         `json:"HBondAcceptorCount"`
	RotatableBondCount int         `json:"RotatableBondCount"`
}

// propertyList are the property names requested from PUG REST.
const propertyList = "MolecularFormula,MolecularWeight,CanonicalSMILES,InChIKey," +
	"IUPACName,XLogP,TPSA,HBondDonorCount,HBondAcceptorCount,RotatableBondCount"

type identifierList struct {
	IdentifierList struct {
		CID []int `json:"CID"`
	} `json:"IdentifierList"`
}

type propertyTable struct {
	PropertyTable struct {
		Properties []CompoundProperties `json:"Properties"`
	} `json:"PropertyTable"`
}

// ResolveCID resolves a compound name to its first (canonical) CID.
func (c *Client) ResolveCID(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New(errors.ErrCodeValidation, "compound name is required")
	}

	var ids identifierList
	path := fmt.Sprintf("/compound/name/%s/cids/JSON", url.PathEscape(name))
	if err := c.getJSON(ctx, path, nil, &ids); err != nil {
		return 0, err
	}
	if len(ids.IdentifierList.CID) == 0 {
		return 0, errors.New(errors.ErrCodeProviderNotFound, "no CID for compound name").
			WithDetailf("name=%s", name)
	}
	return ids.IdentifierList.CID[0], nil
}

// ResolveCIDBySMILES resolves a SMILES string to its CID. The SMILES travels
// as a query parameter so that slashes in ring bond notation survive.
func (c *Client) ResolveCIDBySMILES(ctx context.Context, smiles string) (int, error) {
	smiles = strings.TrimSpace(smiles)
	if smiles == "" {
		return 0, errors.New(errors.ErrCodeValidation, "smiles is required")
	}

	var ids identifierList
	query := url.Values{"smiles": {smiles}}
	if err := c.getJSON(ctx, "/compound/smiles/cids/JSON", query, &ids); err != nil {
		return 0, err
	}
	if len(ids.IdentifierList.CID) == 0 || ids.IdentifierList.CID[0] == 0 {
		return 0, errors.New(errors.ErrCodeProviderNotFound, "no CID for structure").
			WithDetailf("smiles=%s", smiles)
	}
	return ids.IdentifierList.CID[0], nil
}

// GetProperties fetches the standard property set for one CID.
func (c *Client) GetProperties(ctx context.Context, cid int) (*CompoundProperties, error) {
	if cid <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "cid must be positive")
	}

	var table propertyTable
	path := fmt.Sprintf("/compound/cid/%d/property/%s/JSON", cid, propertyList)
	if err := c.getJSON(ctx, path, nil, &table); err != nil {
		return nil, err
	}
	if len(table.PropertyTable.Properties) == 0 {
		return nil, errors.New(errors.ErrCodeProviderBadResponse, "empty property table").
			WithDetailf("cid=%d", cid)
	}
	props := table.PropertyTable.Properties[0]
	return &props, nil
}

// SimilaritySearch runs a 2D fingerprint similarity search against the query
// SMILES. threshold is a Tanimoto percentage in [0, 100]; maxRecords caps the
// result size (0 uses the server default).
func (c *Client) SimilaritySearch(ctx context.Context, smiles string, threshold, maxRecords int) ([]int, error) {
	smiles = strings.TrimSpace(smiles)
	if smiles == "" {
		return nil, errors.New(errors.ErrCodeValidation, "smiles is required")
	}
	if threshold < 0 || threshold > 100 {
		return nil, errors.New(errors.ErrCodeValidation, "similarity threshold must be in [0, 100]").
			WithDetailf("threshold=%d", threshold)
	}

	query := url.Values{"smiles": {smiles}}
	if threshold > 0 {
		query.Set("Threshold", fmt.Sprintf("%d", threshold))
	}
	if maxRecords > 0 {
		query.Set("MaxRecords", fmt.Sprintf("%d", maxRecords))
	}

	var ids identifierList
	if err := c.getJSON(ctx, "/compound/fastsimilarity_2d/smiles/cids/JSON", query, &ids); err != nil {
		return nil, err
	}
	return ids.IdentifierList.CID, nil
}

// Depiction renders a 2D structure image for the CID and returns raw PNG
// bytes. size is the square edge length in pixels (0 uses the server default).
func (c *Client) Depiction(ctx context.Context, cid, size int) ([]byte, error) {
	if cid <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "cid must be positive")
	}

	var query url.Values
	if size > 0 {
		query = url.Values{"image_size": {fmt.Sprintf("%dx%d", size, size)}}
	}
	body, err := c.getRaw(ctx, fmt.Sprintf("/compound/cid/%d/PNG", cid), query, "image/png")
	if err != nil {
		return nil, err
	}
	if !isPNG(body) {
		return nil, errors.New(errors.ErrCodeProviderBadResponse, "depiction is not a PNG image").
			WithDetailf("cid=%d", cid)
	}
	return body, nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func isPNG(b []byte) bool {
	if len(b) < len(pngMagic) {
		return false
	}
	for i, want := range pngMagic {
		if b[i] != want {
			return false
		}
	}
	return true
}

// Float converts a PubChem json.Number field, returning 0 for absent values.
func Float(n json.Number) float64 {
	v, _ := n.Float64()
	return v
}
