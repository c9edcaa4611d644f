package screening

import (
	"sort"

	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sort Order and Filters
// ─────────────────────────────────────────────────────────────────────────────

// Order selects ranking direction: similarity screens rank descending,
// RMSD screens ascending.
type Order int

const (
	OrderDescending Order = iota
	OrderAscending
)

// Filter decides whether a scored candidate survives ranking. Filters run
// before truncation, so top-K always returns K survivors when enough exist.
type Filter func(hit mtypes.SimilarityHit, cand Candidate) bool

// LipinskiFilter keeps candidates passing the 4-of-5 drug-likeness screen.
func LipinskiFilter() Filter {
	return func(_ mtypes.SimilarityHit, cand Candidate) bool {
		if cand.Mol == nil {
			return false
		}
		return cand.Mol.Lipinski().Passed
	}
}

// ThresholdFilter keeps hits at or above the score threshold. Used with
// OrderDescending screens only.
func ThresholdFilter(threshold float64) Filter {
	return func(hit mtypes.SimilarityHit, _ Candidate) bool {
		return hit.Score >= threshold
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Ranker
// ─────────────────────────────────────────────────────────────────────────────

// Ranker sorts scored hits, applies filters, and truncates to top-K. Skipped
// hits (candidates the scorer could not process) bypass filters and sorting
// and are appended after ranked results so callers can report them.
type Ranker struct {
	Order   Order
	TopK    int // 0 means no truncation
	Filters []Filter
}

// Rank returns ranked, filtered hits followed by any skipped entries. The
// sort is stable: candidates with equal scores keep corpus order. Rank
// numbers are assigned 1-based after sorting and every ranked hit is marked
// Passed; skipped entries carry neither.
func (r Ranker) Rank(hits []mtypes.SimilarityHit, corpus *Corpus) ([]mtypes.SimilarityHit, error) {
	if r.TopK < 0 {
		return nil, errors.Newf(errors.ErrCodeValidation, "top-k must be >= 0, got %d", r.TopK)
	}

	ranked := make([]mtypes.SimilarityHit, 0, len(hits))
	var skipped []mtypes.SimilarityHit
	for _, h := range hits {
		if h.Skipped {
			skipped = append(skipped, h)
			continue
		}
		ranked = append(ranked, h)
	}

	if len(r.Filters) > 0 && corpus != nil {
		byRef := make(map[string]Candidate, corpus.Len())
		for i := 0; i < corpus.Len(); i++ {
			byRef[corpus.At(i).RefID] = corpus.At(i)
		}
		kept := ranked[:0]
		for _, h := range ranked {
			ok := true
			for _, f := range r.Filters {
				if !f(h, byRef[h.RefID]) {
					ok = false
					break
				}
			}
			if ok {
				kept = append(kept, h)
			}
		}
		ranked = kept
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if r.Order == OrderAscending {
			return ranked[a].Score < ranked[b].Score
		}
		return ranked[a].Score > ranked[b].Score
	})

	if r.TopK > 0 && len(ranked) > r.TopK {
		ranked = ranked[:r.TopK]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Passed = true
	}

	return append(ranked, skipped...), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scoring
// ─────────────────────────────────────────────────────────────────────────────

// ScoreSimilarity scores every corpus candidate against the query with the
// given fingerprint type and metric. Candidates whose fingerprints cannot be
// computed are returned as skipped hits with the reason recorded; they never
// abort the batch.
func ScoreSimilarity(query *molecule.Molecule, corpus *Corpus,
	fpType mtypes.FingerprintType, metric molecule.SimilarityMetric) ([]mtypes.SimilarityHit, error) {

	if corpus == nil || corpus.Len() == 0 {
		return nil, errors.New(errors.ErrCodeCorpusEmpty, "no candidates to screen")
	}
	if !metric.IsValid() {
		return nil, errors.Newf(errors.ErrCodeValidation, "unknown similarity metric %q", metric)
	}

	hits := make([]mtypes.SimilarityHit, 0, corpus.Len())
	for i := 0; i < corpus.Len(); i++ {
		cand := corpus.At(i)
		hit := mtypes.SimilarityHit{RefID: cand.RefID, SMILES: cand.SMILES}

		score, err := query.SimilarityTo(cand.Mol, fpType, metric)
		if err != nil {
			hit.Skipped = true
			hit.SkipNote = err.Error()
		} else {
			hit.Score = score
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// ScoreShape embeds conformers and superposes every candidate onto the
// query, scoring by RMSD (lower is better). Candidates with incompatible
// atom counts or failed embeddings are recorded as skipped.
func ScoreShape(query *molecule.Molecule, corpus *Corpus, maxIterations int, seed int64) ([]mtypes.SimilarityHit, error) {
	if corpus == nil || corpus.Len() == 0 {
		return nil, errors.New(errors.ErrCodeCorpusEmpty, "no candidates to screen")
	}
	if _, err := query.EnsureConformer(maxIterations, seed); err != nil {
		return nil, err
	}

	hits := make([]mtypes.SimilarityHit, 0, corpus.Len())
	for i := 0; i < corpus.Len(); i++ {
		cand := corpus.At(i)
		hit := mtypes.SimilarityHit{RefID: cand.RefID, SMILES: cand.SMILES}

		res, err := cand.Mol.AlignTo(query, maxIterations, seed)
		if err != nil {
			hit.Skipped = true
			hit.SkipNote = err.Error()
		} else {
			hit.Score = res.RMSD
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
