package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSMILESOrderIndependence(t *testing.T) {
	// The same constitution written in different atom orders must yield the
	// same canonical string.
	tests := []struct {
		name    string
		writings []string
	}{
		{"ethanol", []string{"CCO", "OCC", "C(O)C"}},
		{"isobutane", []string{"CC(C)C", "C(C)(C)C"}},
		{"toluene", []string{"Cc1ccccc1", "c1ccccc1C", "c1ccc(C)cc1"}},
		{"acetic acid", []string{"CC(=O)O", "OC(C)=O", "C(=O)(O)C"}},
		{"propanol vs reversed", []string{"CCCO", "OCCC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var canonical string
			for i, smiles := range tt.writings {
				g, err := ParseSMILES(smiles)
				require.NoError(t, err, "writing %q", smiles)
				got := CanonicalSMILES(g)
				if i == 0 {
					canonical = got
					continue
				}
				assert.Equal(t, canonical, got, "writing %q", smiles)
			}
		})
	}
}

func TestCanonicalSMILESIdempotent(t *testing.T) {
	// Canonicalizing the canonical form must be a fixed point.
	for _, smiles := range []string{
		"CCO",
		"c1ccccc1",
		"CC(=O)Oc1ccccc1C(=O)O",
		"C1CCCCC1",
		"[NH4+]",
		"c1ccccc1-c1ccccc1",
		"[Na+].[Cl-]",
	} {
		t.Run(smiles, func(t *testing.T) {
			g1, err := ParseSMILES(smiles)
			require.NoError(t, err)
			c1 := CanonicalSMILES(g1)

			g2, err := ParseSMILES(c1)
			require.NoError(t, err, "canonical output %q must reparse", c1)
			c2 := CanonicalSMILES(g2)

			assert.Equal(t, c1, c2)
		})
	}
}

func TestCanonicalSMILESKekuleAromaticEquivalence(t *testing.T) {
	// A ring written with alternating single/double bonds and the same ring
	// written in lowercase aromatic form are the same molecule and must
	// canonicalize to the same string.
	tests := []struct {
		name     string
		writings []string
	}{
		{"benzene", []string{"C1=CC=CC=C1", "c1ccccc1"}},
		{"toluene", []string{"CC1=CC=CC=C1", "Cc1ccccc1"}},
		{"aspirin", []string{"CC(=O)OC1=CC=CC=C1C(=O)O", "OC(=O)c1ccccc1OC(C)=O"}},
		{"caffeine", []string{"CN1C=NC2=C1C(=O)N(C)C(=O)N2C", "Cn1cnc2c1c(=O)n(C)c(=O)n2C"}},
		{"pyridine", []string{"C1=CC=NC=C1", "c1ccncc1"}},
		{"pyrrole", []string{"C1=CC=CN1", "c1cc[nH]c1"}},
		{"furan", []string{"C1=CC=CO1", "c1ccoc1"}},
		{"naphthalene", []string{"C1=CC=C2C=CC=CC2=C1", "c1ccc2ccccc2c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var canonical string
			for i, smiles := range tt.writings {
				g, err := ParseSMILES(smiles)
				require.NoError(t, err, "writing %q", smiles)
				got := CanonicalSMILES(g)
				if i == 0 {
					canonical = got
					continue
				}
				assert.Equal(t, canonical, got, "writing %q", smiles)
			}
		})
	}
}

func TestCanonicalSMILESKekulePyrroleKeepsHydrogen(t *testing.T) {
	g, err := ParseSMILES("C1=CC=CN1")
	require.NoError(t, err)
	assert.Contains(t, CanonicalSMILES(g), "[nH]")
}

func TestCanonicalSMILESNonAromaticRingsStayKekule(t *testing.T) {
	// Rings that fail the electron count keep their double bonds.
	tests := []struct {
		name   string
		smiles string
	}{
		{"cyclohexene", "C1=CCCCC1"},
		{"cyclobutadiene", "C1=CC=C1"},
		{"quinone", "O=C1C=CC(=O)C=C1"},
		{"cyclopentadiene", "C1=CC=CC1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseSMILES(tt.smiles)
			require.NoError(t, err)
			assert.Equal(t, 0, g.AromaticRingCount())
			assert.Contains(t, CanonicalSMILES(g), "=")
		})
	}
}

func TestStructureKeyIdenticalAcrossKekuleSpelling(t *testing.T) {
	g1, err := ParseSMILES("CC(=O)OC1=CC=CC=C1C(=O)O")
	require.NoError(t, err)
	g2, err := ParseSMILES("CC(=O)Oc1ccccc1C(=O)O")
	require.NoError(t, err)

	assert.Equal(t, StructureKey(CanonicalSMILES(g1)), StructureKey(CanonicalSMILES(g2)))
}

func TestCanonicalSMILESPreservesConstitution(t *testing.T) {
	for _, smiles := range []string{
		"CCO",
		"c1ccncc1",
		"CC(=O)Oc1ccccc1C(=O)O",
		"Cn1cnc2c1c(=O)n(C)c(=O)n2C",
	} {
		t.Run(smiles, func(t *testing.T) {
			g1, err := ParseSMILES(smiles)
			require.NoError(t, err)
			g2, err := ParseSMILES(CanonicalSMILES(g1))
			require.NoError(t, err)

			assert.Equal(t, len(g1.Atoms), len(g2.Atoms))
			assert.Equal(t, len(g1.Bonds), len(g2.Bonds))
			assert.Equal(t, MolecularFormula(g1), MolecularFormula(g2))
			assert.Equal(t, g1.RingCount(), g2.RingCount())
		})
	}
}

func TestCanonicalSMILESDistinguishesIsomers(t *testing.T) {
	g1, err := ParseSMILES("CCO") // ethanol
	require.NoError(t, err)
	g2, err := ParseSMILES("COC") // dimethyl ether
	require.NoError(t, err)

	assert.NotEqual(t, CanonicalSMILES(g1), CanonicalSMILES(g2))
}

func TestStructureKeyFormat(t *testing.T) {
	key := StructureKey("CCO")
	require.Len(t, key, 27)
	assert.Equal(t, byte('-'), key[14])
	assert.Equal(t, byte('-'), key[25])

	assert.Equal(t, key, StructureKey("CCO"), "key must be deterministic")
	assert.NotEqual(t, key, StructureKey("CCC"))
}
