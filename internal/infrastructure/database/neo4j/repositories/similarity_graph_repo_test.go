package repositories

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/internal/config"
	driver "github.com/turtacn/ChemScreen/internal/infrastructure/database/neo4j"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

// stubResult
type stubResult struct {
	records []*neo4j.Record
	idx     int
}

func (s *stubResult) Next(ctx context.Context) bool { return s.idx < len(s.records) }

func (s *stubResult) Record() *neo4j.Record {
	rec := s.records[s.idx]
	s.idx++
	return rec
}

func (s *stubResult) Err() error { return nil }

func (s *stubResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) { return nil, nil }

// recordingTx captures the last query so assertions can inspect it.
type recordingTx struct {
	cypher string
	params map[string]any
	result driver.Result
	err    error
}

func (r *recordingTx) Run(ctx context.Context, cypher string, params map[string]any) (driver.Result, error) {
	r.cypher = cypher
	r.params = params
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &stubResult{}, nil
}

// fakeGraphDriver
type fakeGraphDriver struct {
	tx     *recordingTx
	reads  int
	writes int
}

func (f *fakeGraphDriver) ExecuteRead(ctx context.Context, work driver.TransactionWork) (any, error) {
	f.reads++
	return work(f.tx)
}

func (f *fakeGraphDriver) ExecuteWrite(ctx context.Context, work driver.TransactionWork) (any, error) {
	f.writes++
	return work(f.tx)
}

func (f *fakeGraphDriver) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeGraphDriver) Close() error { return nil }

func newTestRepo(tx *recordingTx) (*SimilarityGraphRepo, *fakeGraphDriver) {
	d := &fakeGraphDriver{tx: tx}
	repo := NewSimilarityGraphRepo(d, config.Neo4jConfig{EdgeThreshold: 0.70}, logging.NewNopLogger())
	return repo, d
}

func record(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func TestThresholdDefaults(t *testing.T) {
	repo := NewSimilarityGraphRepo(&fakeGraphDriver{tx: &recordingTx{}}, config.Neo4jConfig{}, logging.NewNopLogger())
	assert.InDelta(t, 0.70, repo.Threshold(), 1e-9)

	repo = NewSimilarityGraphRepo(&fakeGraphDriver{tx: &recordingTx{}}, config.Neo4jConfig{EdgeThreshold: 0.85}, logging.NewNopLogger())
	assert.InDelta(t, 0.85, repo.Threshold(), 1e-9)
}

func TestUpsertMolecule(t *testing.T) {
	tx := &recordingTx{}
	repo, d := newTestRepo(tx)

	err := repo.UpsertMolecule(context.Background(), MoleculeNode{
		ID:       "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		InChIKey: "BSYNRYMUTXBXSQ-UHFFFAOYSA-N",
		SMILES:   "CC(=O)Oc1ccccc1C(=O)O",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, d.writes)
	assert.Contains(t, tx.cypher, "MERGE (m:Molecule")
	assert.Equal(t, "BSYNRYMUTXBXSQ-UHFFFAOYSA-N", tx.params["inchiKey"])

	err = repo.UpsertMolecule(context.Background(), MoleculeNode{SMILES: "C"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestLinkSimilarSkipsBelowThreshold(t *testing.T) {
	tx := &recordingTx{}
	repo, d := newTestRepo(tx)

	linked, err := repo.LinkSimilar(context.Background(), "AAAA", "BBBB", 0.55)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.Equal(t, 0, d.writes)
}

func TestLinkSimilarCanonicalOrder(t *testing.T) {
	tx := &recordingTx{}
	repo, _ := newTestRepo(tx)

	linked, err := repo.LinkSimilar(context.Background(), "ZZZZ", "AAAA", 0.91)
	require.NoError(t, err)
	assert.True(t, linked)
	assert.Equal(t, "AAAA", tx.params["aKey"])
	assert.Equal(t, "ZZZZ", tx.params["bKey"])
	assert.Equal(t, 0.91, tx.params["score"])
}

func TestLinkSimilarValidation(t *testing.T) {
	repo, _ := newTestRepo(&recordingTx{})
	ctx := context.Background()

	_, err := repo.LinkSimilar(ctx, "", "B", 0.9)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	_, err = repo.LinkSimilar(ctx, "A", "A", 0.9)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestBatchLinkSimilarFilters(t *testing.T) {
	tx := &recordingTx{}
	repo, d := newTestRepo(tx)

	written, err := repo.BatchLinkSimilar(context.Background(), []SimilarityEdge{
		{AKey: "AAAA", BKey: "CCCC", Score: 0.95},
		{AKey: "DDDD", BKey: "BBBB", Score: 0.75},
		{AKey: "AAAA", BKey: "BBBB", Score: 0.40}, // below threshold
		{AKey: "EEEE", BKey: "EEEE", Score: 0.99}, // self link
	})
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, 1, d.writes)

	batch := tx.params["batch"].([]map[string]any)
	require.Len(t, batch, 2)
	// Second pair is reordered to its canonical direction.
	assert.Equal(t, "BBBB", batch[1]["a"])
	assert.Equal(t, "DDDD", batch[1]["b"])
}

func TestBatchLinkSimilarAllFiltered(t *testing.T) {
	tx := &recordingTx{}
	repo, d := newTestRepo(tx)

	written, err := repo.BatchLinkSimilar(context.Background(), []SimilarityEdge{
		{AKey: "AAAA", BKey: "BBBB", Score: 0.10},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Equal(t, 0, d.writes)
}

func TestNeighborsClampsMinScore(t *testing.T) {
	tx := &recordingTx{result: &stubResult{records: []*neo4j.Record{
		record([]string{"inchi_key", "smiles", "score"}, []any{"CCCC", "c1ccccc1", 0.92}),
		record([]string{"inchi_key", "smiles", "score"}, []any{"DDDD", "c1ccncc1", 0.81}),
	}}}
	repo, d := newTestRepo(tx)

	neighbors, err := repo.Neighbors(context.Background(), "AAAA", 0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, d.reads)

	// A floor below the edge threshold is meaningless since weaker
	// pairs were never linked.
	assert.InDelta(t, 0.70, tx.params["minScore"].(float64), 1e-9)
	assert.Equal(t, defaultNeighborLimit, tx.params["limit"])

	require.Len(t, neighbors, 2)
	assert.Equal(t, "CCCC", neighbors[0].InChIKey)
	assert.InDelta(t, 0.92, neighbors[0].Score, 1e-9)
	assert.Equal(t, "c1ccncc1", neighbors[1].SMILES)
}

func TestNeighborsRequiresKey(t *testing.T) {
	repo, _ := newTestRepo(&recordingTx{})
	_, err := repo.Neighbors(context.Background(), "", 0.8, 10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestSimilarityPath(t *testing.T) {
	tx := &recordingTx{result: &stubResult{records: []*neo4j.Record{
		record([]string{"keys"}, []any{[]any{"AAAA", "MMMM", "ZZZZ"}}),
	}}}
	repo, _ := newTestRepo(tx)

	keys, err := repo.SimilarityPath(context.Background(), "AAAA", "ZZZZ", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAA", "MMMM", "ZZZZ"}, keys)
	assert.Contains(t, tx.cypher, "*..4")
}

func TestSimilarityPathNoRoute(t *testing.T) {
	repo, _ := newTestRepo(&recordingTx{result: &stubResult{}})

	keys, err := repo.SimilarityPath(context.Background(), "AAAA", "ZZZZ", 0)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMostConnected(t *testing.T) {
	tx := &recordingTx{result: &stubResult{records: []*neo4j.Record{
		record([]string{"inchi_key", "smiles", "degree"}, []any{"AAAA", "CCO", int64(14)}),
	}}}
	repo, _ := newTestRepo(tx)

	hubs, err := repo.MostConnected(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, hubs, 1)
	assert.Equal(t, int64(14), hubs[0].Degree)
	assert.Equal(t, 5, tx.params["limit"])
}

func TestStats(t *testing.T) {
	tx := &recordingTx{result: &stubResult{records: []*neo4j.Record{
		record([]string{"molecules", "edges"}, []any{int64(120), int64(340)}),
	}}}
	repo, _ := newTestRepo(tx)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(120), stats.Molecules)
	assert.Equal(t, int64(340), stats.Edges)
}

func TestRemoveMolecule(t *testing.T) {
	tx := &recordingTx{}
	repo, d := newTestRepo(tx)

	require.NoError(t, repo.RemoveMolecule(context.Background(), "AAAA"))
	assert.Equal(t, 1, d.writes)
	assert.Contains(t, tx.cypher, "DETACH DELETE")

	err := repo.RemoveMolecule(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}
