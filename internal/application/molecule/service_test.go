package molecule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/internal/config"
	domain "github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ChemScreen/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/internal/infrastructure/search/milvus"
	"github.com/turtacn/ChemScreen/internal/infrastructure/search/opensearch"
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

const (
	aspirinSMILES  = "CC(=O)Oc1ccccc1C(=O)O"
	caffeineSMILES = "Cn1cnc2c1c(=O)n(C)c(=O)n2C"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStore struct {
	saved    []*domain.Molecule
	byKey    map[string]*domain.Molecule
	saveErr  error
	deleted  []common.ID
	searched []*domain.Molecule
	total    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: make(map[string]*domain.Molecule)}
}

func (s *fakeStore) Save(_ context.Context, m *domain.Molecule) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, m)
	s.byKey[m.InChIKey] = m
	return nil
}

func (s *fakeStore) FindByInChIKey(_ context.Context, key string) (*domain.Molecule, error) {
	if m, ok := s.byKey[key]; ok {
		return m, nil
	}
	return nil, errors.New(errors.ErrCodeMoleculeNotFound, "not found")
}

func (s *fakeStore) Search(_ context.Context, _ string, _ common.Pagination) ([]*domain.Molecule, int64, error) {
	return s.searched, s.total, nil
}

func (s *fakeStore) ListAll(_ context.Context, _ int) ([]*domain.Molecule, error) {
	return s.searched, nil
}

func (s *fakeStore) Count(_ context.Context) (int64, error) { return s.total, nil }

func (s *fakeStore) Delete(_ context.Context, id common.ID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeCache struct {
	puts        []*mtypes.MoleculeDTO
	invalidated []string
	stored      map[string]*mtypes.MoleculeDTO
}

func newFakeCache() *fakeCache {
	return &fakeCache{stored: make(map[string]*mtypes.MoleculeDTO)}
}

func (c *fakeCache) GetOrLoad(ctx context.Context, key string, loader func(ctx context.Context) (*mtypes.MoleculeDTO, error)) (*mtypes.MoleculeDTO, error) {
	if dto, ok := c.stored[key]; ok {
		return dto, nil
	}
	return loader(ctx)
}

func (c *fakeCache) Put(_ context.Context, dto *mtypes.MoleculeDTO) error {
	c.puts = append(c.puts, dto)
	c.stored[dto.InChIKey] = dto
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, key string) error {
	c.invalidated = append(c.invalidated, key)
	return nil
}

type fakeVectors struct {
	added   []milvus.Entry
	removed []string
	addErr  error
}

func (v *fakeVectors) Add(_ context.Context, entries []milvus.Entry) error {
	if v.addErr != nil {
		return v.addErr
	}
	v.added = append(v.added, entries...)
	return nil
}

func (v *fakeVectors) Remove(_ context.Context, ids []string) error {
	v.removed = append(v.removed, ids...)
	return nil
}

type fakeSearcher struct {
	neighbors []milvus.Neighbor
	err       error
	queries   int
}

func (s *fakeSearcher) SearchNearest(_ context.Context, _ []byte, _ int) ([]milvus.Neighbor, error) {
	s.queries++
	return s.neighbors, s.err
}

type fakeNames struct {
	indexed []opensearch.MoleculeDoc
	deleted []string
}

func (n *fakeNames) IndexMolecule(_ context.Context, doc opensearch.MoleculeDoc) error {
	n.indexed = append(n.indexed, doc)
	return nil
}

func (n *fakeNames) DeleteMolecule(_ context.Context, key string) error {
	n.deleted = append(n.deleted, key)
	return nil
}

type fakeGraph struct {
	threshold float64
	upserts   []repositories.MoleculeNode
	edges     []repositories.SimilarityEdge
	removed   []string
	neighbors []repositories.SimilarNeighbor
}

func (g *fakeGraph) Threshold() float64 { return g.threshold }

func (g *fakeGraph) UpsertMolecule(_ context.Context, node repositories.MoleculeNode) error {
	g.upserts = append(g.upserts, node)
	return nil
}

func (g *fakeGraph) BatchLinkSimilar(_ context.Context, edges []repositories.SimilarityEdge) (int, error) {
	g.edges = append(g.edges, edges...)
	return len(edges), nil
}

func (g *fakeGraph) RemoveMolecule(_ context.Context, key string) error {
	g.removed = append(g.removed, key)
	return nil
}

func (g *fakeGraph) Neighbors(_ context.Context, _ string, _ float64, _ int) ([]repositories.SimilarNeighbor, error) {
	return g.neighbors, nil
}

type fakeEvents struct {
	published []publishedEvent
	err       error
}

type publishedEvent struct {
	topic string
	key   string
	env   *kafka.EventEnvelope
}

func (e *fakeEvents) PublishEvent(_ context.Context, topic, key string, env *kafka.EventEnvelope) error {
	if e.err != nil {
		return e.err
	}
	e.published = append(e.published, publishedEvent{topic: topic, key: key, env: env})
	return nil
}

type serviceFixture struct {
	svc      *Service
	store    *fakeStore
	cache    *fakeCache
	vectors  *fakeVectors
	searcher *fakeSearcher
	names    *fakeNames
	graph    *fakeGraph
	events   *fakeEvents
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:    newFakeStore(),
		cache:    newFakeCache(),
		vectors:  &fakeVectors{},
		searcher: &fakeSearcher{},
		names:    &fakeNames{},
		graph:    &fakeGraph{threshold: 0.7},
		events:   &fakeEvents{},
	}
	svc, err := NewService(Deps{
		Store:    f.store,
		Cache:    f.cache,
		Vectors:  f.vectors,
		Searcher: f.searcher,
		Names:    f.names,
		Graph:    f.graph,
		Events:   f.events,
	}, config.ScreeningConfig{DefaultTopK: 10, MorganBits: 2048}, logging.NewNopLogger())
	require.NoError(t, err)
	f.svc = svc
	return f
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(Deps{}, config.ScreeningConfig{}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestRegisterFansOut(t *testing.T) {
	f := newServiceFixture(t)
	f.searcher.neighbors = []milvus.Neighbor{
		{InChIKey: "NEIGHBOR-KEY-1", SMILES: "c1ccccc1O", Similarity: 0.82},
	}

	res, err := f.svc.Register(context.Background(), RegisterInput{
		SMILES: aspirinSMILES,
		Name:   "aspirin",
		Source: "manual",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.Molecule.InChIKey)
	assert.Equal(t, "aspirin", res.Molecule.Name)

	require.Len(t, f.store.saved, 1)
	require.Len(t, f.cache.puts, 1)

	require.Len(t, f.vectors.added, 1)
	assert.Equal(t, res.Molecule.InChIKey, f.vectors.added[0].InChIKey)
	assert.NotEmpty(t, f.vectors.added[0].Fingerprint)

	require.Len(t, f.names.indexed, 1)
	assert.Equal(t, "aspirin", f.names.indexed[0].Name)
	assert.Greater(t, f.names.indexed[0].MolecularWeight, 100.0)

	require.Len(t, f.graph.upserts, 1)
	require.Len(t, f.graph.edges, 1)
	assert.Equal(t, "NEIGHBOR-KEY-1", f.graph.edges[0].BKey)
	assert.InDelta(t, 0.82, f.graph.edges[0].Score, 1e-9)

	require.Len(t, f.events.published, 1)
	assert.Equal(t, kafka.TopicMoleculeRegistered, f.events.published[0].topic)
	assert.Equal(t, res.Molecule.InChIKey, f.events.published[0].key)
}

func TestRegisterIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)

	first, err := f.svc.Register(context.Background(), RegisterInput{SMILES: aspirinSMILES})
	require.NoError(t, err)
	assert.True(t, first.Created)

	// Same structure written differently still maps to the same InChIKey.
	second, err := f.svc.Register(context.Background(), RegisterInput{SMILES: aspirinSMILES})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Molecule.InChIKey, second.Molecule.InChIKey)
	assert.Len(t, f.store.saved, 1)
	assert.Len(t, f.events.published, 1)
}

func TestRegisterRejectsInvalidSMILES(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{SMILES: "C1CC"})
	assert.Error(t, err)
	assert.Empty(t, f.store.saved)
}

func TestRegisterSkipsSelfEdge(t *testing.T) {
	f := newServiceFixture(t)

	mol, err := domain.NewMolecule(caffeineSMILES)
	require.NoError(t, err)
	f.searcher.neighbors = []milvus.Neighbor{
		{InChIKey: mol.InChIKey, Similarity: 1.0},
		{InChIKey: "OTHER-KEY", Similarity: 0.75},
	}

	_, err = f.svc.Register(context.Background(), RegisterInput{SMILES: caffeineSMILES})
	require.NoError(t, err)
	require.Len(t, f.graph.edges, 1)
	assert.Equal(t, "OTHER-KEY", f.graph.edges[0].BKey)
}

func TestRegisterSurvivesIndexFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.vectors.addErr = errors.New(errors.ErrCodeServiceUnavailable, "milvus down")

	res, err := f.svc.Register(context.Background(), RegisterInput{SMILES: aspirinSMILES})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, f.store.saved, 1)
	assert.Len(t, f.names.indexed, 1)
}

func TestGetReadsThroughCache(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.Register(context.Background(), RegisterInput{SMILES: aspirinSMILES})
	require.NoError(t, err)

	dto, err := f.svc.Get(context.Background(), res.Molecule.InChIKey)
	require.NoError(t, err)
	assert.Equal(t, res.Molecule.CanonicalSMILES, dto.CanonicalSMILES)
}

func TestGetUnknownKeyIsNotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Get(context.Background(), "UNKNOWN-KEY")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeNotFound))
}

func TestListPagesRegistry(t *testing.T) {
	f := newServiceFixture(t)
	mol, err := domain.NewMolecule(aspirinSMILES)
	require.NoError(t, err)
	f.store.searched = []*domain.Molecule{mol}
	f.store.total = 41

	got, err := f.svc.List(context.Background(), "", common.Pagination{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, got.Molecules, 1)
	assert.Equal(t, int64(41), got.Page.Total)
	assert.Equal(t, 2, got.Page.Page)
}

func TestDeleteCleansIndexes(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.Register(context.Background(), RegisterInput{SMILES: aspirinSMILES})
	require.NoError(t, err)
	key := res.Molecule.InChIKey

	require.NoError(t, f.svc.Delete(context.Background(), key))
	assert.Len(t, f.store.deleted, 1)
	assert.Equal(t, []string{key}, f.cache.invalidated)
	assert.Len(t, f.vectors.removed, 1)
	assert.Equal(t, []string{key}, f.names.deleted)
	assert.Equal(t, []string{key}, f.graph.removed)
}

func TestPropertiesComputesWithoutPersisting(t *testing.T) {
	f := newServiceFixture(t)

	props, err := f.svc.Properties(context.Background(), aspirinSMILES)
	require.NoError(t, err)
	assert.InDelta(t, 180.0, props.Descriptors.MolecularWeight, 1.0)
	assert.True(t, props.Lipinski.Passed)
	assert.Empty(t, f.store.saved)
}

func TestFindSimilarFiltersQueryItself(t *testing.T) {
	f := newServiceFixture(t)
	mol, err := domain.NewMolecule(aspirinSMILES)
	require.NoError(t, err)
	f.searcher.neighbors = []milvus.Neighbor{
		{InChIKey: mol.InChIKey, SMILES: mol.CanonicalSMILES, Similarity: 1.0},
		{InChIKey: "CANDIDATE-KEY", SMILES: "CC(=O)Oc1ccccc1", Similarity: 0.88},
	}

	hits, err := f.svc.FindSimilar(context.Background(), aspirinSMILES, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "CANDIDATE-KEY", hits[0].InChIKey)
	assert.InDelta(t, 0.88, hits[0].Similarity, 1e-9)
}

func TestFindSimilarWithoutIndex(t *testing.T) {
	f := newServiceFixture(t)
	svc, err := NewService(Deps{Store: f.store}, config.ScreeningConfig{}, logging.NewNopLogger())
	require.NoError(t, err)

	_, err = svc.FindSimilar(context.Background(), aspirinSMILES, 5)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}
