package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

func TestNewMolecule(t *testing.T) {
	mol, err := NewMolecule("CC(=O)Oc1ccccc1C(=O)O")
	require.NoError(t, err)

	assert.True(t, mol.ID.IsValid())
	assert.Equal(t, "CC(=O)Oc1ccccc1C(=O)O", mol.SMILES)
	assert.NotEmpty(t, mol.CanonicalSMILES)
	assert.Len(t, mol.InChIKey, 27)
	assert.Equal(t, "C9H8O4", mol.MolecularFormula)
	assert.InDelta(t, 180.159, mol.Descriptors.MolecularWeight, 0.05)
	assert.Equal(t, 13, mol.Descriptors.HeavyAtoms)
	assert.NotNil(t, mol.Graph())

	events := mol.Events()
	require.Len(t, events, 1)
	reg, ok := events[0].(MoleculeRegisteredEvent)
	require.True(t, ok)
	assert.Equal(t, mol.ID, reg.MoleculeID)
	assert.Equal(t, mol.InChIKey, reg.InChIKey)
	assert.Empty(t, mol.Events(), "events cleared after retrieval")
}

func TestNewMoleculeInvalidSMILES(t *testing.T) {
	_, err := NewMolecule("C1CC")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeInvalidSMILES))
}

func TestNewMoleculeSameStructureSameKey(t *testing.T) {
	m1, err := NewMolecule("CCO")
	require.NoError(t, err)
	m2, err := NewMolecule("OCC")
	require.NoError(t, err)

	assert.Equal(t, m1.CanonicalSMILES, m2.CanonicalSMILES)
	assert.Equal(t, m1.InChIKey, m2.InChIKey)
	assert.NotEqual(t, m1.ID, m2.ID)
}

func TestMoleculeComputeFingerprint(t *testing.T) {
	mol, err := NewMolecule("c1ccccc1O")
	require.NoError(t, err)
	mol.Events() // drain registration event

	fp, err := mol.ComputeFingerprint(mtypes.FingerprintMorgan, 0)
	require.NoError(t, err)
	assert.Equal(t, 2048, fp.Length)
	assert.Same(t, fp, mol.Fingerprints[mtypes.FingerprintMorgan])

	events := mol.Events()
	require.Len(t, events, 1)
	fpEvent, ok := events[0].(FingerprintComputedEvent)
	require.True(t, ok)
	assert.Equal(t, mtypes.FingerprintMorgan, fpEvent.FingerprintType)

	_, err = mol.ComputeFingerprint(mtypes.FingerprintType("bogus"), 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintUnsupported))
}

func TestMoleculeSimilarityTo(t *testing.T) {
	aspirin, err := NewMolecule("CC(=O)Oc1ccccc1C(=O)O")
	require.NoError(t, err)
	salicylic, err := NewMolecule("OC(=O)c1ccccc1O")
	require.NoError(t, err)

	score, err := aspirin.SimilarityTo(salicylic, mtypes.FingerprintMorgan, MetricTanimoto)
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)

	self, err := aspirin.SimilarityTo(aspirin, mtypes.FingerprintMorgan, MetricTanimoto)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, self, 1e-12)
}

func TestMoleculeConformerAndAlignment(t *testing.T) {
	m1, err := NewMolecule("CCCO")
	require.NoError(t, err)
	m2, err := NewMolecule("CCCO")
	require.NoError(t, err)

	res, err := m2.AlignTo(m1, 150, 42)
	require.NoError(t, err)
	// Same structure, same seed: identical geometry, zero RMSD.
	assert.InDelta(t, 0, res.RMSD, 1e-9)

	other, err := NewMolecule("CC")
	require.NoError(t, err)
	_, err = other.AlignTo(m1, 150, 42)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAlignmentIncompatible))
}

func TestMoleculeDTORoundTrip(t *testing.T) {
	mol, err := NewMolecule("Cc1ccccc1")
	require.NoError(t, err)
	mol.Name = "toluene"
	mol.Synonyms = []string{"methylbenzene"}
	_, err = mol.ComputeFingerprint(mtypes.FingerprintMACCS, 0)
	require.NoError(t, err)

	dto := mol.ToDTO()
	assert.Equal(t, mol.InChIKey, dto.InChIKey)
	assert.Equal(t, mol.CanonicalSMILES, dto.CanonicalSMILES)
	assert.Contains(t, dto.Fingerprints, mtypes.FingerprintMACCS)

	restored := FromDTO(dto)
	assert.Equal(t, mol.ID, restored.ID)
	assert.Equal(t, mol.Descriptors, restored.Descriptors)
	assert.Equal(t, "toluene", restored.Name)

	require.NoError(t, restored.Reparse())
	require.NotNil(t, restored.Graph())
	assert.Equal(t, mol.Graph().HeavyAtomCount(), restored.Graph().HeavyAtomCount())

	origFP := mol.Fingerprints[mtypes.FingerprintMACCS]
	restFP := restored.Fingerprints[mtypes.FingerprintMACCS]
	require.NotNil(t, restFP)
	assert.Equal(t, origFP.OnBits(), restFP.OnBits())
}

func TestMoleculeLipinski(t *testing.T) {
	small, err := NewMolecule("CCO")
	require.NoError(t, err)
	assert.True(t, small.Lipinski().Passed)
}
