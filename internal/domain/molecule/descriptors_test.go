package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

func mustParse(t *testing.T, smiles string) *Graph {
	t.Helper()
	g, err := ParseSMILES(smiles)
	require.NoError(t, err)
	return g
}

func TestMolecularWeight(t *testing.T) {
	tests := []struct {
		name   string
		smiles string
		want   float64
	}{
		{"methane", "C", 16.043},
		{"ethanol", "CCO", 46.069},
		{"benzene", "c1ccccc1", 78.114},
		{"water-like hydroxide", "[OH-]", 17.007},
		{"aspirin", "CC(=O)Oc1ccccc1C(=O)O", 180.159},
		{"caffeine", "Cn1cnc2c1c(=O)n(C)c(=O)n2C", 194.194},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustParse(t, tt.smiles)
			assert.InDelta(t, tt.want, MolecularWeight(g), 0.05)
		})
	}
}

func TestMolecularFormula(t *testing.T) {
	tests := []struct {
		smiles string
		want   string
	}{
		{"CCO", "C2H6O"},
		{"c1ccccc1", "C6H6"},
		{"CC(=O)O", "C2H4O2"},
		{"[NH4+]", "H4N"},
		{"ClCCl", "CH2Cl2"},
		{"[Na+].[Cl-]", "ClNa"},
	}

	for _, tt := range tests {
		t.Run(tt.smiles, func(t *testing.T) {
			assert.Equal(t, tt.want, MolecularFormula(mustParse(t, tt.smiles)))
		})
	}
}

func TestHBondCounts(t *testing.T) {
	tests := []struct {
		name     string
		smiles   string
		wantHBD  int
		wantHBA  int
	}{
		{"ethanol", "CCO", 1, 1},
		{"benzene", "c1ccccc1", 0, 0},
		{"acetic acid", "CC(=O)O", 1, 2},
		{"aniline", "Nc1ccccc1", 1, 1},
		{"dimethyl ether", "COC", 0, 1},
		{"glycine", "NCC(=O)O", 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustParse(t, tt.smiles)
			assert.Equal(t, tt.wantHBD, HBondDonors(g), "donors")
			assert.Equal(t, tt.wantHBA, HBondAcceptors(g), "acceptors")
		})
	}
}

func TestRotatableBonds(t *testing.T) {
	tests := []struct {
		name   string
		smiles string
		want   int
	}{
		{"ethanol has no rotor", "CCO", 0},
		{"propanol", "CCCO", 1},
		{"butane", "CCCC", 1},
		{"benzene", "c1ccccc1", 0},
		{"ethylbenzene", "CCc1ccccc1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RotatableBonds(mustParse(t, tt.smiles)))
		})
	}
}

func TestTPSAOrdering(t *testing.T) {
	// TPSA is an estimate; assert relative ordering rather than exact values.
	hydrocarbon := TPSA(mustParse(t, "CCCCCC"))
	alcohol := TPSA(mustParse(t, "CCCCCO"))
	acid := TPSA(mustParse(t, "CCCCC(=O)O"))

	assert.Zero(t, hydrocarbon)
	assert.Greater(t, alcohol, hydrocarbon)
	assert.Greater(t, acid, alcohol)
}

func TestLogPOrdering(t *testing.T) {
	hexane := LogP(mustParse(t, "CCCCCC"))
	ethanol := LogP(mustParse(t, "CCO"))

	assert.Greater(t, hexane, ethanol, "alkane should be more lipophilic than alcohol")
	assert.Greater(t, hexane, 0.0)
}

func TestComputeDescriptors(t *testing.T) {
	d := ComputeDescriptors(mustParse(t, "CC(=O)Oc1ccccc1C(=O)O"))

	assert.InDelta(t, 180.159, d.MolecularWeight, 0.05)
	assert.Equal(t, 13, d.HeavyAtoms)
	assert.Equal(t, 1, d.AromaticRings)
	assert.Equal(t, 1, d.RingCount)
	assert.Equal(t, 1, d.HBondDonors)
	assert.Equal(t, 4, d.HBondAcceptors)
}

func TestEvaluateLipinski(t *testing.T) {
	tests := []struct {
		name         string
		desc         mtypes.Descriptors
		wantPassed   bool
		wantFailures int
	}{
		{
			"small drug passes",
			mtypes.Descriptors{MolecularWeight: 180, LogP: 1.2, HBondDonors: 1, HBondAcceptors: 4},
			true, 0,
		},
		{
			"one violation still passes",
			mtypes.Descriptors{MolecularWeight: 550, LogP: 1.2, HBondDonors: 1, HBondAcceptors: 4},
			true, 1,
		},
		{
			"two violations fail",
			mtypes.Descriptors{MolecularWeight: 550, LogP: 6.5, HBondDonors: 1, HBondAcceptors: 4},
			false, 2,
		},
		{
			"boundary values pass",
			mtypes.Descriptors{MolecularWeight: 500, LogP: 5, HBondDonors: 5, HBondAcceptors: 10, RotatableBonds: 10},
			true, 0,
		},
		{
			"excess rotors count as a violation",
			mtypes.Descriptors{MolecularWeight: 550, LogP: 1, HBondDonors: 1, HBondAcceptors: 4, RotatableBonds: 12},
			false, 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := EvaluateLipinski(tt.desc)
			assert.Equal(t, tt.wantPassed, r.Passed)
			assert.Equal(t, tt.wantFailures, r.Failures)
		})
	}
}
