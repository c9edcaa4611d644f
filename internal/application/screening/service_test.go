package screening

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/internal/domain/screening"
	"github.com/turtacn/ChemScreen/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
)

const smiCorpus = `CC(=O)Oc1ccccc1C(=O)O aspirin
CC(=O)Nc1ccc(O)cc1 paracetamol
c1ccccc1 benzene
CCO ethanol
`

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRunStore struct {
	runs    map[common.ID]*screening.Run
	saves   int
	updates int
	listed  []*screening.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[common.ID]*screening.Run)}
}

func (s *fakeRunStore) Save(_ context.Context, run *screening.Run) error {
	s.saves++
	s.runs[run.ID] = run
	return nil
}

func (s *fakeRunStore) Update(_ context.Context, run *screening.Run) error {
	s.updates++
	s.runs[run.ID] = run
	return nil
}

func (s *fakeRunStore) FindByID(_ context.Context, id common.ID) (*screening.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeScreeningRunNotFound, "run not found")
	}
	return run, nil
}

func (s *fakeRunStore) List(_ context.Context, _ screening.RunStatus, _ common.Pagination) ([]*screening.Run, int64, error) {
	return s.listed, int64(len(s.listed)), nil
}

type fakeRegistry struct {
	mols []*molecule.Molecule
	err  error
}

func (r *fakeRegistry) ListAll(_ context.Context, _ int) ([]*molecule.Molecule, error) {
	return r.mols, r.err
}

type fakeReports struct {
	archived map[string]interface{}
	url      string
}

func newFakeReports() *fakeReports {
	return &fakeReports{archived: make(map[string]interface{}), url: "https://minio.local/report"}
}

func (r *fakeReports) Put(_ context.Context, runID string, report interface{}) error {
	r.archived[runID] = report
	return nil
}

func (r *fakeReports) DownloadURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return r.url, nil
}

type fakeEvents struct {
	topics []string
	keys   []string
}

func (e *fakeEvents) PublishEvent(_ context.Context, topic, key string, _ *kafka.EventEnvelope) error {
	e.topics = append(e.topics, topic)
	e.keys = append(e.keys, key)
	return nil
}

type fakeLock struct {
	acquireErr error
	acquired   int
	released   int
}

func (l *fakeLock) TryAcquire(_ context.Context) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired++
	return nil
}

func (l *fakeLock) Release(_ context.Context) error {
	l.released++
	return nil
}

type fixture struct {
	svc      *Service
	runs     *fakeRunStore
	registry *fakeRegistry
	reports  *fakeReports
	events   *fakeEvents
	lock     *fakeLock
}

func registryMolecules(t *testing.T, smiles ...string) []*molecule.Molecule {
	t.Helper()
	mols := make([]*molecule.Molecule, len(smiles))
	for i, smi := range smiles {
		m, err := molecule.NewMolecule(smi)
		require.NoError(t, err)
		mols[i] = m
	}
	return mols
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runs:     newFakeRunStore(),
		registry: &fakeRegistry{},
		reports:  newFakeReports(),
		events:   &fakeEvents{},
		lock:     &fakeLock{},
	}
	svc, err := NewService(Deps{
		Runs:     f.runs,
		Registry: f.registry,
		Reports:  f.reports,
		Events:   f.events,
		LockFor:  func(string) Locker { return f.lock },
	}, config.ScreeningConfig{
		DefaultTopK:        10,
		DefaultThreshold:   0.1,
		MorganBits:         2048,
		MaxCorpusSize:      10000,
		EmbedMaxIterations: 50,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	f.svc = svc
	return f
}

// ─────────────────────────────────────────────────────────────────────────────
// Synchronous screening
// ─────────────────────────────────────────────────────────────────────────────

func TestScreenStreamSimilarity(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ScreenStream(context.Background(), Request{
		QuerySMILES: "CC(=O)Oc1ccccc1C(=O)O",
		Mode:        "similarity",
		TopK:        3,
	}, strings.NewReader(smiCorpus), FormatSMI, "")
	require.NoError(t, err)

	assert.Equal(t, 4, res.CorpusSize)
	require.NotEmpty(t, res.Hits)
	// The query itself is in the corpus, so the top hit is an exact match.
	assert.Equal(t, "aspirin", res.Hits[0].RefID)
	assert.InDelta(t, 1.0, res.Hits[0].Score, 1e-9)
	assert.Equal(t, 1, res.Hits[0].Rank)
	// Descending order for similarity screens.
	for i := 1; i < len(res.Hits); i++ {
		if res.Hits[i].Skipped {
			continue
		}
		assert.LessOrEqual(t, res.Hits[i].Score, res.Hits[i-1].Score)
	}
}

func TestScreenStreamShape(t *testing.T) {
	f := newFixture(t)

	// Shape screens need compatible atom counts; screen benzene against
	// a corpus of six-membered rings.
	corpus := "c1ccccc1 benzene\nc1ccncc1 pyridine\n"
	res, err := f.svc.ScreenStream(context.Background(), Request{
		QuerySMILES: "c1ccccc1",
		Mode:        "shape",
		Seed:        42,
	}, strings.NewReader(corpus), FormatSMI, "")
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	// Ascending order for RMSD screens: self-match first.
	assert.Equal(t, "benzene", res.Hits[0].RefID)
}

func TestScreenStreamRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ScreenStream(context.Background(), Request{
		QuerySMILES: "CCO",
	}, strings.NewReader(smiCorpus), CorpusFormat("sdf"), "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestScreenStreamRejectsUnknownFingerprint(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ScreenStream(context.Background(), Request{
		QuerySMILES:     "CCO",
		FingerprintType: "ecfp9000",
	}, strings.NewReader(smiCorpus), FormatSMI, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintUnsupported))
}

func TestScreenStreamCorpusTooLarge(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.MaxCorpusSize = 2

	_, err := f.svc.ScreenStream(context.Background(), Request{
		QuerySMILES: "CCO",
	}, strings.NewReader(smiCorpus), FormatSMI, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestScreenStreamLipinskiFilter(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ScreenStream(context.Background(), Request{
		QuerySMILES:  "CC(=O)Oc1ccccc1C(=O)O",
		LipinskiOnly: true,
	}, strings.NewReader(smiCorpus), FormatSMI, "")
	require.NoError(t, err)
	for _, h := range res.Hits {
		if !h.Skipped {
			assert.True(t, h.Passed)
		}
	}
}

func TestScreenRegistry(t *testing.T) {
	f := newFixture(t)
	f.registry.mols = registryMolecules(t, "CC(=O)Oc1ccccc1C(=O)O", "CCO", "c1ccccc1O")

	res, err := f.svc.ScreenRegistry(context.Background(), Request{
		QuerySMILES: "CC(=O)Oc1ccccc1C(=O)O",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.CorpusSize)
	require.NotEmpty(t, res.Hits)
	// Registry candidates are keyed by InChIKey.
	assert.Equal(t, f.registry.mols[0].InChIKey, res.Hits[0].RefID)
}

func TestScreenRegistryEmpty(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ScreenRegistry(context.Background(), Request{QuerySMILES: "CCO"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCorpusEmpty))
}

// ─────────────────────────────────────────────────────────────────────────────
// Run lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestSubmitCreatesPendingRun(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Submit(context.Background(), Request{
		QuerySMILES: "CC(=O)Oc1ccccc1C(=O)O",
		Mode:        "similarity",
	})
	require.NoError(t, err)
	assert.Equal(t, screening.StatusPending, run.Status)
	assert.Equal(t, 1, f.runs.saves)
	require.Equal(t, []string{kafka.TopicScreeningRequested}, f.events.topics)
	assert.Equal(t, run.ID.String(), f.events.keys[0])
}

func TestSubmitDefaultsParameters(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Submit(context.Background(), Request{QuerySMILES: "CCO"})
	require.NoError(t, err)
	assert.Equal(t, screening.Mode2D, run.Params.Mode)
	assert.Equal(t, 10, run.Params.TopK)
	assert.Equal(t, "tanimoto", run.Params.Metric)
}

func TestExecuteCompletesRun(t *testing.T) {
	f := newFixture(t)
	f.registry.mols = registryMolecules(t, "CC(=O)Oc1ccccc1C(=O)O", "CCO")

	run, err := f.svc.Submit(context.Background(), Request{QuerySMILES: "CC(=O)Oc1ccccc1C(=O)O"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Execute(context.Background(), run.ID))

	got, err := f.svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, screening.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.CorpusSize)
	assert.NotEmpty(t, got.Hits)

	assert.Contains(t, f.reports.archived, run.ID.String())
	assert.Contains(t, f.events.topics, kafka.TopicScreeningCompleted)
	assert.Equal(t, 1, f.lock.acquired)
	assert.Equal(t, 1, f.lock.released)
}

func TestExecuteFailsRunOnEmptyRegistry(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Submit(context.Background(), Request{QuerySMILES: "CCO"})
	require.NoError(t, err)

	err = f.svc.Execute(context.Background(), run.ID)
	require.Error(t, err)

	got, err := f.svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, screening.StatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Contains(t, f.events.topics, kafka.TopicScreeningFailed)
	// The lock is still released on failure.
	assert.Equal(t, 1, f.lock.released)
}

func TestExecuteLockContention(t *testing.T) {
	f := newFixture(t)
	f.lock.acquireErr = errors.New(errors.ErrCodeConflict, "run already claimed")

	run, err := f.svc.Submit(context.Background(), Request{QuerySMILES: "CCO"})
	require.NoError(t, err)

	err = f.svc.Execute(context.Background(), run.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
	// The run was never started.
	got, _ := f.svc.GetRun(context.Background(), run.ID)
	assert.Equal(t, screening.StatusPending, got.Status)
}

func TestExecuteUnknownRun(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Execute(context.Background(), common.NewID())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeScreeningRunNotFound))
}

func TestReportURLRequiresCompletedRun(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Submit(context.Background(), Request{QuerySMILES: "CCO"})
	require.NoError(t, err)

	_, err = f.svc.ReportURL(context.Background(), run.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestReportURLForCompletedRun(t *testing.T) {
	f := newFixture(t)
	f.registry.mols = registryMolecules(t, "CCO", "CCC")

	run, err := f.svc.Submit(context.Background(), Request{QuerySMILES: "CCO"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), run.ID))

	url, err := f.svc.ReportURL(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, f.reports.url, url)
}
