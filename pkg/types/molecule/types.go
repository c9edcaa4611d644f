// Package molecule defines the data-transfer types for molecular structures,
// fingerprints, and descriptors shared between the API surface and the
// application layer.
package molecule

import (
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
)

// FingerprintType identifies a fingerprint algorithm.
type FingerprintType string

const (
	// FingerprintMACCS is the 166-bit structural-key fingerprint.
	FingerprintMACCS FingerprintType = "maccs"
	// FingerprintMorgan is the hashed circular (ECFP-style) fingerprint.
	FingerprintMorgan FingerprintType = "morgan"
)

// AllFingerprintTypes lists every supported fingerprint type.
func AllFingerprintTypes() []FingerprintType {
	return []FingerprintType{FingerprintMACCS, FingerprintMorgan}
}

// IsValid reports whether the fingerprint type is supported.
func (t FingerprintType) IsValid() bool {
	switch t {
	case FingerprintMACCS, FingerprintMorgan:
		return true
	}
	return false
}

func (t FingerprintType) String() string { return string(t) }

// DefaultLength returns the bit length produced for the type with default
// parameters.
func (t FingerprintType) DefaultLength() int {
	switch t {
	case FingerprintMACCS:
		return 166
	case FingerprintMorgan:
		return 2048
	}
	return 0
}

// ParseFingerprintType parses a string into a FingerprintType.
func ParseFingerprintType(s string) (FingerprintType, error) {
	t := FingerprintType(s)
	if !t.IsValid() {
		return "", errors.New(errors.ErrCodeFingerprintUnsupported, "unsupported fingerprint type: "+s)
	}
	return t, nil
}

// Descriptors is the record of computed physicochemical properties for one
// molecule. All values are pure functions of the structure.
type Descriptors struct {
	MolecularWeight float64 `json:"molecular_weight"`
	LogP            float64 `json:"log_p"`
	TPSA            float64 `json:"tpsa"`
	HBondDonors     int     `json:"h_bond_donors"`
	HBondAcceptors  int     `json:"h_bond_acceptors"`
	RotatableBonds  int     `json:"rotatable_bonds"`
	HeavyAtoms      int     `json:"heavy_atoms"`
	AromaticRings   int     `json:"aromatic_rings"`
	RingCount       int     `json:"ring_count"`
}

// MoleculeDTO is the cross-layer representation of a registered molecule.
type MoleculeDTO struct {
	common.BaseEntity

	SMILES           string      `json:"smiles"`
	CanonicalSMILES  string      `json:"canonical_smiles"`
	InChIKey         string      `json:"inchi_key"`
	MolecularFormula string      `json:"molecular_formula"`
	Name             string      `json:"name,omitempty"`
	Synonyms         []string    `json:"synonyms,omitempty"`
	Descriptors      Descriptors `json:"descriptors"`

	// Fingerprints maps type to the packed bit vector.
	Fingerprints map[FingerprintType][]byte `json:"fingerprints,omitempty"`
}

// SimilarityHit is one entry in a ranked similarity result list.
type SimilarityHit struct {
	RefID    string  `json:"ref_id"`
	SMILES   string  `json:"smiles"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
	Passed   bool    `json:"passed_filter"`
	Skipped  bool    `json:"skipped,omitempty"`
	SkipNote string  `json:"skip_note,omitempty"`
}
