package screening

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

func testCorpus(t *testing.T, smi string) *Corpus {
	t.Helper()
	corpus, _, err := ReadSMI(strings.NewReader(smi))
	require.NoError(t, err)
	return corpus
}

func hit(ref string, score float64) mtypes.SimilarityHit {
	return mtypes.SimilarityHit{RefID: ref, Score: score}
}

func TestRankerDescending(t *testing.T) {
	hits := []mtypes.SimilarityHit{hit("a", 0.3), hit("b", 0.9), hit("c", 0.5)}

	ranked, err := Ranker{Order: OrderDescending}.Rank(hits, nil)
	require.NoError(t, err)

	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].RefID)
	assert.Equal(t, "c", ranked[1].RefID)
	assert.Equal(t, "a", ranked[2].RefID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 3, ranked[2].Rank)
}

func TestRankerAscending(t *testing.T) {
	hits := []mtypes.SimilarityHit{hit("a", 2.5), hit("b", 0.4), hit("c", 1.1)}

	ranked, err := Ranker{Order: OrderAscending}.Rank(hits, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "a"},
		[]string{ranked[0].RefID, ranked[1].RefID, ranked[2].RefID})
}

func TestRankerStableTies(t *testing.T) {
	hits := []mtypes.SimilarityHit{hit("first", 0.5), hit("second", 0.5), hit("third", 0.5)}

	ranked, err := Ranker{Order: OrderDescending}.Rank(hits, nil)
	require.NoError(t, err)

	// Equal scores keep input (corpus) order.
	assert.Equal(t, "first", ranked[0].RefID)
	assert.Equal(t, "second", ranked[1].RefID)
	assert.Equal(t, "third", ranked[2].RefID)
}

func TestRankerTopK(t *testing.T) {
	hits := []mtypes.SimilarityHit{hit("a", 0.1), hit("b", 0.9), hit("c", 0.5), hit("d", 0.7)}

	ranked, err := Ranker{Order: OrderDescending, TopK: 2}.Rank(hits, nil)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].RefID)
	assert.Equal(t, "d", ranked[1].RefID)

	_, err = Ranker{TopK: -1}.Rank(hits, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestRankerSkippedBypassRanking(t *testing.T) {
	hits := []mtypes.SimilarityHit{
		hit("a", 0.2),
		{RefID: "bad", Skipped: true, SkipNote: "atom counts differ"},
		hit("b", 0.8),
	}

	ranked, err := Ranker{Order: OrderDescending, TopK: 1}.Rank(hits, nil)
	require.NoError(t, err)

	// Top-1 plus the skipped entry appended.
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].RefID)
	assert.True(t, ranked[1].Skipped)
	assert.Equal(t, "bad", ranked[1].RefID)
	assert.Zero(t, ranked[1].Rank, "skipped entries carry no rank")
}

func TestRankerThresholdFilter(t *testing.T) {
	hits := []mtypes.SimilarityHit{hit("a", 0.95), hit("b", 0.4), hit("c", 0.71)}
	corpus := testCorpus(t, "CCO a\nCCC b\nCCN c\n")

	ranked, err := Ranker{
		Order:   OrderDescending,
		Filters: []Filter{ThresholdFilter(0.7)},
	}.Rank(hits, corpus)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].RefID)
	assert.Equal(t, "c", ranked[1].RefID)
}

func TestRankerLipinskiFilter(t *testing.T) {
	// A long greasy chain violates both logP and rotatable bond limits;
	// ethanol passes.
	corpus := testCorpus(t,
		"CCO small\nCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC greasy\n")
	hits := []mtypes.SimilarityHit{hit("small", 0.5), hit("greasy", 0.9)}

	ranked, err := Ranker{
		Order:   OrderDescending,
		Filters: []Filter{LipinskiFilter()},
	}.Rank(hits, corpus)
	require.NoError(t, err)

	require.Len(t, ranked, 1)
	assert.Equal(t, "small", ranked[0].RefID)
	assert.True(t, ranked[0].Passed)
}

func TestRankerMarksRankedHitsPassed(t *testing.T) {
	hits := []mtypes.SimilarityHit{
		hit("a", 0.9),
		{RefID: "bad", Skipped: true, SkipNote: "parse failed"},
		hit("b", 0.3),
	}

	ranked, err := Ranker{Order: OrderDescending}.Rank(hits, nil)
	require.NoError(t, err)

	require.Len(t, ranked, 3)
	assert.True(t, ranked[0].Passed)
	assert.True(t, ranked[1].Passed)
	assert.False(t, ranked[2].Passed, "skipped entries are not marked passed")
}

func TestScoreSimilarity(t *testing.T) {
	corpus := testCorpus(t, "CC(=O)Oc1ccccc1C(=O)O aspirin\nOC(=O)c1ccccc1O salicylic\nCCCCCC hexane\n")
	query, err := molecule.NewMolecule("CC(=O)Oc1ccccc1C(=O)O")
	require.NoError(t, err)

	hits, err := ScoreSimilarity(query, corpus, mtypes.FingerprintMorgan, molecule.MetricTanimoto)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	byRef := map[string]mtypes.SimilarityHit{}
	for _, h := range hits {
		byRef[h.RefID] = h
	}
	assert.InDelta(t, 1.0, byRef["aspirin"].Score, 1e-12, "self match")
	assert.Greater(t, byRef["salicylic"].Score, byRef["hexane"].Score)
}

func TestScoreSimilarityEmptyCorpus(t *testing.T) {
	query, err := molecule.NewMolecule("CCO")
	require.NoError(t, err)

	_, err = ScoreSimilarity(query, nil, mtypes.FingerprintMorgan, molecule.MetricTanimoto)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCorpusEmpty))
}

func TestScoreShape(t *testing.T) {
	// Same-formula candidates align; the mismatched one is skipped, not fatal.
	corpus := testCorpus(t, "CCCO c1\nCCCN c2\nCC tiny\n")
	query, err := molecule.NewMolecule("CCCO")
	require.NoError(t, err)

	hits, err := ScoreShape(query, corpus, 150, 42)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	byRef := map[string]mtypes.SimilarityHit{}
	for _, h := range hits {
		byRef[h.RefID] = h
	}
	assert.False(t, byRef["c1"].Skipped)
	assert.InDelta(t, 0, byRef["c1"].Score, 1e-9, "identical structure, same seed")
	assert.False(t, byRef["c2"].Skipped)
	assert.True(t, byRef["tiny"].Skipped)
	assert.NotEmpty(t, byRef["tiny"].SkipNote)
}

func TestScoreShapeRankedAscending(t *testing.T) {
	corpus := testCorpus(t, "CCCO exact\nCOCC isomer\n")
	query, err := molecule.NewMolecule("CCCO")
	require.NoError(t, err)

	hits, err := ScoreShape(query, corpus, 150, 42)
	require.NoError(t, err)

	ranked, err := Ranker{Order: OrderAscending}.Rank(hits, corpus)
	require.NoError(t, err)
	assert.Equal(t, "exact", ranked[0].RefID)
}
