package toxicity

import (
	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Featurization
// ─────────────────────────────────────────────────────────────────────────────

// FeaturizeFingerprint expands a fingerprint bit vector into a 0/1 float
// feature row for the forest.
func FeaturizeFingerprint(fp *molecule.Fingerprint) []float64 {
	out := make([]float64, fp.Length)
	for _, b := range fp.OnBits() {
		out[b] = 1
	}
	return out
}

// FeaturizeMolecule computes the fingerprint feature row for one molecule.
func FeaturizeMolecule(mol *molecule.Molecule, fpType mtypes.FingerprintType, nbits int) ([]float64, error) {
	fp, err := mol.ComputeFingerprint(fpType, nbits)
	if err != nil {
		return nil, err
	}
	return FeaturizeFingerprint(fp), nil
}

// Dataset pairs feature rows with target values plus bookkeeping for error
// reporting.
type Dataset struct {
	X       [][]float64
	Y       []float64
	Skipped int
}

// BuildDataset parses SMILES strings, featurizes each, and pairs them with
// targets. Unparseable structures are skipped and counted; a dataset where
// nothing parsed is invalid.
func BuildDataset(smiles []string, targets []float64, fpType mtypes.FingerprintType, nbits int) (*Dataset, error) {
	if len(smiles) != len(targets) {
		return nil, errors.Newf(errors.ErrCodeTrainingDataInvalid,
			"%d structures but %d targets", len(smiles), len(targets))
	}
	if len(smiles) == 0 {
		return nil, errors.New(errors.ErrCodeTrainingDataInvalid, "empty training set")
	}

	ds := &Dataset{}
	for i, s := range smiles {
		mol, err := molecule.NewMolecule(s)
		if err != nil {
			ds.Skipped++
			continue
		}
		row, err := FeaturizeMolecule(mol, fpType, nbits)
		if err != nil {
			ds.Skipped++
			continue
		}
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, targets[i])
	}
	if len(ds.X) == 0 {
		return nil, errors.New(errors.ErrCodeTrainingDataInvalid,
			"no structure in the training set could be parsed")
	}
	return ds, nil
}
