// Package molecule is the application service behind the molecule registry:
// it parses incoming structures, persists them, and fans registration out to
// the fingerprint index, the name index, the similarity network and the
// event bus.
package molecule

import (
	"context"
	"time"

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

// neighborProbeK bounds how many indexed molecules are probed when wiring a
// newly registered structure into the similarity network.
const neighborProbeK = 50

// ─────────────────────────────────────────────────────────────────────────────
// Collaborator interfaces
// ─────────────────────────────────────────────────────────────────────────────

// Store is the persistence surface the service needs from the relational
// repository.
type Store interface {
	Save(ctx context.Context, m *domain.Molecule) error
	FindByInChIKey(ctx context.Context, inchiKey string) (*domain.Molecule, error)
	Search(ctx context.Context, name string, page common.Pagination) ([]*domain.Molecule, int64, error)
	ListAll(ctx context.Context, limit int) ([]*domain.Molecule, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id common.ID) error
}

// Cache is the read-through DTO cache keyed by InChIKey.
type Cache interface {
	GetOrLoad(ctx context.Context, inchiKey string, loader func(ctx context.Context) (*mtypes.MoleculeDTO, error)) (*mtypes.MoleculeDTO, error)
	Put(ctx context.Context, dto *mtypes.MoleculeDTO) error
	Invalidate(ctx context.Context, inchiKey string) error
}

// VectorIndex is the fingerprint ANN index.
type VectorIndex interface {
	Add(ctx context.Context, entries []milvus.Entry) error
	Remove(ctx context.Context, ids []string) error
}

// VectorSearcher runs nearest-neighbor queries over the fingerprint index.
type VectorSearcher interface {
	SearchNearest(ctx context.Context, fingerprint []byte, topK int) ([]milvus.Neighbor, error)
}

// NameIndex is the full-text molecule name index.
type NameIndex interface {
	IndexMolecule(ctx context.Context, doc opensearch.MoleculeDoc) error
	DeleteMolecule(ctx context.Context, inchiKey string) error
}

// Graph is the chemical-space similarity network.
type Graph interface {
	Threshold() float64
	UpsertMolecule(ctx context.Context, node repositories.MoleculeNode) error
	BatchLinkSimilar(ctx context.Context, edges []repositories.SimilarityEdge) (int, error)
	RemoveMolecule(ctx context.Context, inchiKey string) error
	Neighbors(ctx context.Context, inchiKey string, minScore float64, limit int) ([]repositories.SimilarNeighbor, error)
}

// Events publishes domain events to the bus.
type Events interface {
	PublishEvent(ctx context.Context, topic string, key string, env *kafka.EventEnvelope) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// Service orchestrates molecule registration and lookup.
type Service struct {
	store    Store
	cache    Cache
	vectors  VectorIndex
	searcher VectorSearcher
	names    NameIndex
	graph    Graph
	events   Events
	cfg      config.ScreeningConfig
	logger   logging.Logger
	now      func() time.Time
}

// Deps bundles the collaborators for NewService. Cache, vector index, name
// index, graph and events may be nil; registration then skips that fan-out.
type Deps struct {
	Store    Store
	Cache    Cache
	Vectors  VectorIndex
	Searcher VectorSearcher
	Names    NameIndex
	Graph    Graph
	Events   Events
}

func NewService(deps Deps, cfg config.ScreeningConfig, log logging.Logger) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New(errors.ErrCodeValidation, "molecule store is required")
	}
	if cfg.MorganBits <= 0 {
		cfg.MorganBits = mtypes.FingerprintMorgan.DefaultLength()
	}
	return &Service{
		store:    deps.Store,
		cache:    deps.Cache,
		vectors:  deps.Vectors,
		searcher: deps.Searcher,
		names:    deps.Names,
		graph:    deps.Graph,
		events:   deps.Events,
		cfg:      cfg,
		logger:   log.Named("molecule_service"),
		now:      time.Now,
	}, nil
}

// RegisterInput is one structure to add to the registry.
type RegisterInput struct {
	SMILES   string   `json:"smiles"`
	Name     string   `json:"name,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// RegisterResult reports the registered molecule. Created is false when the
// structure was already in the registry; registration is idempotent on the
// InChIKey.
type RegisterResult struct {
	Molecule mtypes.MoleculeDTO `json:"molecule"`
	Created  bool               `json:"created"`
}

// Register parses and persists a molecule, then fans out to the secondary
// indexes. Failures past the primary store are logged and do not fail the
// registration; each index converges on the next write for that structure.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	mol, err := domain.NewMolecule(in.SMILES)
	if err != nil {
		return nil, err
	}
	mol.Name = in.Name
	mol.Synonyms = in.Synonyms

	existing, err := s.store.FindByInChIKey(ctx, mol.InChIKey)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return &RegisterResult{Molecule: existing.ToDTO(), Created: false}, nil
	}

	fp, err := mol.ComputeFingerprint(mtypes.FingerprintMorgan, s.cfg.MorganBits)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, mol); err != nil {
		return nil, err
	}

	dto := mol.ToDTO()
	s.fanOut(ctx, mol, dto, fp.ToBytes())

	s.logger.Info("molecule registered",
		logging.String("inchi_key", mol.InChIKey),
		logging.String("source", in.Source))
	return &RegisterResult{Molecule: dto, Created: true}, nil
}

func (s *Service) fanOut(ctx context.Context, mol *domain.Molecule, dto mtypes.MoleculeDTO, fpBytes []byte) {
	if s.cache != nil {
		if err := s.cache.Put(ctx, &dto); err != nil {
			s.warn("cache put failed", mol.InChIKey, err)
		}
	}
	if s.vectors != nil {
		err := s.vectors.Add(ctx, []milvus.Entry{{
			ID:          mol.ID.String(),
			InChIKey:    mol.InChIKey,
			SMILES:      mol.CanonicalSMILES,
			Fingerprint: fpBytes,
		}})
		if err != nil {
			s.warn("fingerprint index add failed", mol.InChIKey, err)
		}
	}
	if s.names != nil {
		err := s.names.IndexMolecule(ctx, opensearch.MoleculeDoc{
			InChIKey:         mol.InChIKey,
			SMILES:           mol.CanonicalSMILES,
			Name:             mol.Name,
			Synonyms:         mol.Synonyms,
			MolecularFormula: mol.MolecularFormula,
			MolecularWeight:  mol.Descriptors.MolecularWeight,
			RegisteredAt:     s.now().UTC(),
		})
		if err != nil {
			s.warn("name index failed", mol.InChIKey, err)
		}
	}
	if s.graph != nil {
		s.linkIntoGraph(ctx, mol, fpBytes)
	}
	if s.events != nil {
		env, err := kafka.NewEventEnvelope(kafka.TopicMoleculeRegistered, "apiserver", kafka.MoleculeRegisteredPayload{
			MoleculeID:   mol.ID.String(),
			InChIKey:     mol.InChIKey,
			SMILES:       mol.SMILES,
			RegisteredAt: s.now().UTC(),
		})
		if err == nil {
			err = s.events.PublishEvent(ctx, kafka.TopicMoleculeRegistered, mol.InChIKey, env)
		}
		if err != nil {
			s.warn("registered event publish failed", mol.InChIKey, err)
		}
	}
}

// linkIntoGraph adds the molecule node and wires SIMILAR_TO edges to its
// nearest indexed neighbors. The graph repo drops edges below its threshold,
// so over-probing here only costs the ANN query.
func (s *Service) linkIntoGraph(ctx context.Context, mol *domain.Molecule, fpBytes []byte) {
	err := s.graph.UpsertMolecule(ctx, repositories.MoleculeNode{
		ID:       mol.ID.String(),
		InChIKey: mol.InChIKey,
		SMILES:   mol.CanonicalSMILES,
	})
	if err != nil {
		s.warn("graph upsert failed", mol.InChIKey, err)
		return
	}
	if s.searcher == nil {
		return
	}
	neighbors, err := s.searcher.SearchNearest(ctx, fpBytes, neighborProbeK)
	if err != nil {
		s.warn("neighbor probe failed", mol.InChIKey, err)
		return
	}
	edges := make([]repositories.SimilarityEdge, 0, len(neighbors))
	for _, n := range neighbors {
		if n.InChIKey == mol.InChIKey {
			continue
		}
		edges = append(edges, repositories.SimilarityEdge{
			AKey:  mol.InChIKey,
			BKey:  n.InChIKey,
			Score: n.Similarity,
		})
	}
	if len(edges) == 0 {
		return
	}
	if _, err := s.graph.BatchLinkSimilar(ctx, edges); err != nil {
		s.warn("graph linking failed", mol.InChIKey, err)
	}
}

func (s *Service) warn(msg, inchiKey string, err error) {
	s.logger.Warn(msg, logging.String("inchi_key", inchiKey), logging.Err(err))
}

// Get resolves a molecule by InChIKey, through the cache when one is wired.
func (s *Service) Get(ctx context.Context, inchiKey string) (*mtypes.MoleculeDTO, error) {
	if inchiKey == "" {
		return nil, errors.New(errors.ErrCodeValidation, "inchi key is required")
	}
	load := func(ctx context.Context) (*mtypes.MoleculeDTO, error) {
		mol, err := s.store.FindByInChIKey(ctx, inchiKey)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		dto := mol.ToDTO()
		return &dto, nil
	}

	var dto *mtypes.MoleculeDTO
	var err error
	if s.cache != nil {
		dto, err = s.cache.GetOrLoad(ctx, inchiKey, load)
	} else {
		dto, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if dto == nil {
		return nil, errors.Newf(errors.ErrCodeMoleculeNotFound, "molecule %s is not registered", inchiKey)
	}
	return dto, nil
}

// ListResult is one page of registered molecules.
type ListResult struct {
	Molecules []mtypes.MoleculeDTO `json:"molecules"`
	Page      common.Pagination    `json:"pagination"`
}

// List pages through the registry, optionally filtered by name.
func (s *Service) List(ctx context.Context, name string, page common.Pagination) (*ListResult, error) {
	page.Normalize()
	mols, total, err := s.store.Search(ctx, name, page)
	if err != nil {
		return nil, err
	}
	out := make([]mtypes.MoleculeDTO, len(mols))
	for i, m := range mols {
		out[i] = m.ToDTO()
	}
	page.Total = total
	return &ListResult{Molecules: out, Page: page}, nil
}

// Delete removes a molecule from the registry and the secondary indexes.
func (s *Service) Delete(ctx context.Context, inchiKey string) error {
	mol, err := s.store.FindByInChIKey(ctx, inchiKey)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, mol.ID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, inchiKey); err != nil {
			s.warn("cache invalidate failed", inchiKey, err)
		}
	}
	if s.vectors != nil {
		if err := s.vectors.Remove(ctx, []string{mol.ID.String()}); err != nil {
			s.warn("fingerprint index remove failed", inchiKey, err)
		}
	}
	if s.names != nil {
		if err := s.names.DeleteMolecule(ctx, inchiKey); err != nil {
			s.warn("name index delete failed", inchiKey, err)
		}
	}
	if s.graph != nil {
		if err := s.graph.RemoveMolecule(ctx, inchiKey); err != nil {
			s.warn("graph remove failed", inchiKey, err)
		}
	}
	return nil
}

// Properties computes the descriptor block and Lipinski screen for a SMILES
// without touching the registry.
type Properties struct {
	SMILES           string                `json:"smiles"`
	CanonicalSMILES  string                `json:"canonical_smiles"`
	InChIKey         string                `json:"inchi_key"`
	MolecularFormula string                `json:"molecular_formula"`
	Descriptors      mtypes.Descriptors    `json:"descriptors"`
	Lipinski         domain.LipinskiReport `json:"lipinski"`
}

func (s *Service) Properties(_ context.Context, smiles string) (*Properties, error) {
	mol, err := domain.NewMolecule(smiles)
	if err != nil {
		return nil, err
	}
	return &Properties{
		SMILES:           mol.SMILES,
		CanonicalSMILES:  mol.CanonicalSMILES,
		InChIKey:         mol.InChIKey,
		MolecularFormula: mol.MolecularFormula,
		Descriptors:      mol.Descriptors,
		Lipinski:         mol.Lipinski(),
	}, nil
}

// SimilarMolecule is one ANN match for a query structure.
type SimilarMolecule struct {
	InChIKey   string  `json:"inchi_key"`
	SMILES     string  `json:"smiles"`
	Similarity float64 `json:"similarity"`
}

// FindSimilar screens the fingerprint index for the nearest registered
// molecules to an arbitrary query SMILES.
func (s *Service) FindSimilar(ctx context.Context, smiles string, topK int) ([]SimilarMolecule, error) {
	if s.searcher == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "fingerprint index is not configured")
	}
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	mol, err := domain.NewMolecule(smiles)
	if err != nil {
		return nil, err
	}
	fp, err := mol.ComputeFingerprint(mtypes.FingerprintMorgan, s.cfg.MorganBits)
	if err != nil {
		return nil, err
	}
	neighbors, err := s.searcher.SearchNearest(ctx, fp.ToBytes(), topK)
	if err != nil {
		return nil, err
	}
	out := make([]SimilarMolecule, 0, len(neighbors))
	for _, n := range neighbors {
		if n.InChIKey == mol.InChIKey {
			continue
		}
		out = append(out, SimilarMolecule{
			InChIKey:   n.InChIKey,
			SMILES:     n.SMILES,
			Similarity: n.Similarity,
		})
	}
	return out, nil
}

// GraphNeighbors walks the similarity network around a registered molecule.
func (s *Service) GraphNeighbors(ctx context.Context, inchiKey string, minScore float64, limit int) ([]repositories.SimilarNeighbor, error) {
	if s.graph == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "similarity network is not configured")
	}
	return s.graph.Neighbors(ctx, inchiKey, minScore, limit)
}

// Count reports the registry size.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
