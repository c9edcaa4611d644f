package molecule

import (
	"github.com/turtacn/ChemScreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Similarity Calculators
// ─────────────────────────────────────────────────────────────────────────────

// TanimotoSimilarity computes the Tanimoto (Jaccard) coefficient between two
// fingerprints: |A∩B| / |A∪B|. Two all-zero fingerprints have similarity 0.
func TanimotoSimilarity(a, b *Fingerprint) (float64, error) {
	if err := checkComparable(a, b); err != nil {
		return 0, err
	}
	inter := intersectionCount(a, b)
	union := a.PopCount() + b.PopCount() - inter
	if union == 0 {
		return 0, nil
	}
	return float64(inter) / float64(union), nil
}

// DiceSimilarity computes the Dice coefficient between two fingerprints:
// 2|A∩B| / (|A|+|B|). Two all-zero fingerprints have similarity 0.
func DiceSimilarity(a, b *Fingerprint) (float64, error) {
	if err := checkComparable(a, b); err != nil {
		return 0, err
	}
	total := a.PopCount() + b.PopCount()
	if total == 0 {
		return 0, nil
	}
	return 2 * float64(intersectionCount(a, b)) / float64(total), nil
}

func checkComparable(a, b *Fingerprint) error {
	if a == nil || b == nil {
		return errors.New(errors.ErrCodeFingerprintFailed, "nil fingerprint")
	}
	if a.Length != b.Length {
		return errors.Newf(errors.ErrCodeFingerprintDimMismatch,
			"fingerprint lengths differ: %d vs %d", a.Length, b.Length)
	}
	if a.Type != b.Type {
		return errors.Newf(errors.ErrCodeFingerprintDimMismatch,
			"fingerprint types differ: %s vs %s", a.Type, b.Type)
	}
	return nil
}

// SimilarityMetric selects the coefficient used when scoring candidates
// against a query.
type SimilarityMetric string

const (
	MetricTanimoto SimilarityMetric = "tanimoto"
	MetricDice     SimilarityMetric = "dice"
)

// Compare applies the metric to a fingerprint pair.
func (m SimilarityMetric) Compare(a, b *Fingerprint) (float64, error) {
	switch m {
	case MetricDice:
		return DiceSimilarity(a, b)
	case MetricTanimoto, "":
		return TanimotoSimilarity(a, b)
	default:
		return 0, errors.Newf(errors.ErrCodeValidation, "unknown similarity metric %q", m)
	}
}

// IsValid reports whether m names a supported metric.
func (m SimilarityMetric) IsValid() bool {
	return m == MetricTanimoto || m == MetricDice || m == ""
}
