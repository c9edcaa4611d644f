package molecule

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Domain Events
// ─────────────────────────────────────────────────────────────────────────────

// DomainEvent is a marker interface for all molecule-related domain events.
type DomainEvent interface {
	EventType() string
}

// MoleculeRegisteredEvent is published when a new molecule enters the
// platform.
type MoleculeRegisteredEvent struct {
	MoleculeID common.ID
	InChIKey   string
	SMILES     string
}

func (e MoleculeRegisteredEvent) EventType() string { return "molecule.registered" }

// FingerprintComputedEvent is published when a fingerprint is computed for a
// registered molecule.
type FingerprintComputedEvent struct {
	MoleculeID      common.ID
	FingerprintType mtypes.FingerprintType
}

func (e FingerprintComputedEvent) EventType() string { return "molecule.fingerprint_computed" }

// ─────────────────────────────────────────────────────────────────────────────
// Molecule Aggregate Root
// ─────────────────────────────────────────────────────────────────────────────

// Molecule is the aggregate root for chemical structure data. It owns the
// parsed molecular graph, the canonical SMILES produced from it, computed
// descriptors, fingerprints keyed by type, and an optional 3D conformer.
type Molecule struct {
	common.BaseEntity

	SMILES          string `json:"smiles"`
	CanonicalSMILES string `json:"canonical_smiles"`
	InChIKey        string `json:"inchi_key"`

	MolecularFormula string `json:"molecular_formula"`

	Name     string   `json:"name,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`

	Descriptors mtypes.Descriptors `json:"descriptors"`

	Fingerprints map[mtypes.FingerprintType]*Fingerprint `json:"-"`

	graph     *Graph
	conformer *Conformer
	events    []DomainEvent
}

// NewMolecule parses a SMILES string and constructs a fully-initialized
// Molecule aggregate: canonical SMILES, structure key, molecular formula, and
// the complete descriptor block are computed eagerly. Fingerprints and
// conformers are computed on demand.
func NewMolecule(smiles string) (*Molecule, error) {
	g, err := ParseSMILES(smiles)
	if err != nil {
		return nil, err
	}

	canonical := CanonicalSMILES(g)
	mol := &Molecule{
		BaseEntity: common.BaseEntity{
			ID: common.NewID(),
		},
		SMILES:           strings.TrimSpace(smiles),
		CanonicalSMILES:  canonical,
		InChIKey:         StructureKey(canonical),
		MolecularFormula: MolecularFormula(g),
		Descriptors:      ComputeDescriptors(g),
		Fingerprints:     make(map[mtypes.FingerprintType]*Fingerprint),
		graph:            g,
	}

	mol.events = append(mol.events, MoleculeRegisteredEvent{
		MoleculeID: mol.ID,
		InChIKey:   mol.InChIKey,
		SMILES:     mol.SMILES,
	})
	return mol, nil
}

// StructureKey derives a 27-character InChIKey-shaped identifier from a
// canonical SMILES string. It is a stable hash, not a true InChIKey, but two
// molecules share a key exactly when they share a canonical SMILES.
func StructureKey(canonicalSMILES string) string {
	sum := sha256.Sum256([]byte(canonicalSMILES))
	hexStr := strings.ToUpper(hex.EncodeToString(sum[:]))
	return hexStr[:14] + "-" + hexStr[14:24] + "-" + hexStr[24:25]
}

// Graph exposes the parsed molecular graph for descriptor and fingerprint
// code. It is nil on aggregates rebuilt from a DTO until Reparse is called.
func (m *Molecule) Graph() *Graph { return m.graph }

// Reparse restores the molecular graph from the canonical SMILES. Needed
// after reconstructing an aggregate from persistence.
func (m *Molecule) Reparse() error {
	if m.graph != nil {
		return nil
	}
	src := m.CanonicalSMILES
	if src == "" {
		src = m.SMILES
	}
	g, err := ParseSMILES(src)
	if err != nil {
		return err
	}
	m.graph = g
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprints
// ─────────────────────────────────────────────────────────────────────────────

// ComputeFingerprint computes and stores the given fingerprint type. nbits is
// honored for hashed fingerprints and ignored for MACCS; zero selects the
// type's default length.
func (m *Molecule) ComputeFingerprint(fpType mtypes.FingerprintType, nbits int) (*Fingerprint, error) {
	if err := m.Reparse(); err != nil {
		return nil, err
	}
	fp, err := ComputeFingerprint(m.graph, fpType, nbits)
	if err != nil {
		return nil, err
	}
	m.Fingerprints[fpType] = fp
	m.events = append(m.events, FingerprintComputedEvent{
		MoleculeID:      m.ID,
		FingerprintType: fpType,
	})
	return fp, nil
}

// SimilarityTo scores this molecule against another with the given
// fingerprint type and metric, computing missing fingerprints on the fly.
func (m *Molecule) SimilarityTo(other *Molecule, fpType mtypes.FingerprintType, metric SimilarityMetric) (float64, error) {
	fp1, err := m.fingerprintOrCompute(fpType)
	if err != nil {
		return 0, err
	}
	fp2, err := other.fingerprintOrCompute(fpType)
	if err != nil {
		return 0, err
	}
	return metric.Compare(fp1, fp2)
}

func (m *Molecule) fingerprintOrCompute(fpType mtypes.FingerprintType) (*Fingerprint, error) {
	if fp, ok := m.Fingerprints[fpType]; ok {
		return fp, nil
	}
	return m.ComputeFingerprint(fpType, 0)
}

// ─────────────────────────────────────────────────────────────────────────────
// Conformers
// ─────────────────────────────────────────────────────────────────────────────

// EnsureConformer embeds a 3D conformer if none exists yet and returns it.
// The seed makes embedding reproducible across processes.
func (m *Molecule) EnsureConformer(maxIterations int, seed int64) (*Conformer, error) {
	if m.conformer != nil {
		return m.conformer, nil
	}
	if err := m.Reparse(); err != nil {
		return nil, err
	}
	conf, err := EmbedConformer(m.graph, maxIterations, seed)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConformerEmbeddingFailed,
			"conformer embedding failed").WithDetailf("inchikey=%s", m.InChIKey)
	}
	m.conformer = conf
	return conf, nil
}

// AlignTo superposes this molecule's conformer onto the reference molecule's
// conformer and returns the minimized RMSD.
func (m *Molecule) AlignTo(ref *Molecule, maxIterations int, seed int64) (*AlignResult, error) {
	refConf, err := ref.EnsureConformer(maxIterations, seed)
	if err != nil {
		return nil, err
	}
	probeConf, err := m.EnsureConformer(maxIterations, seed)
	if err != nil {
		return nil, err
	}
	return AlignConformers(refConf, probeConf)
}

// Lipinski evaluates the rule of five against the precomputed descriptors.
func (m *Molecule) Lipinski() LipinskiReport {
	return EvaluateLipinski(m.Descriptors)
}

// ─────────────────────────────────────────────────────────────────────────────
// DTO Conversion
// ─────────────────────────────────────────────────────────────────────────────

// ToDTO converts the aggregate to a transfer object for cross-layer use.
func (m *Molecule) ToDTO() mtypes.MoleculeDTO {
	dto := mtypes.MoleculeDTO{
		BaseEntity:       m.BaseEntity,
		SMILES:           m.SMILES,
		CanonicalSMILES:  m.CanonicalSMILES,
		InChIKey:         m.InChIKey,
		MolecularFormula: m.MolecularFormula,
		Name:             m.Name,
		Synonyms:         m.Synonyms,
		Descriptors:      m.Descriptors,
	}
	if len(m.Fingerprints) > 0 {
		dto.Fingerprints = make(map[mtypes.FingerprintType][]byte, len(m.Fingerprints))
		for fpType, fp := range m.Fingerprints {
			dto.Fingerprints[fpType] = fp.ToBytes()
		}
	}
	return dto
}

// FromDTO reconstructs an aggregate from its transfer object. The molecular
// graph is restored lazily via Reparse.
func FromDTO(dto mtypes.MoleculeDTO) *Molecule {
	mol := &Molecule{
		BaseEntity:       dto.BaseEntity,
		SMILES:           dto.SMILES,
		CanonicalSMILES:  dto.CanonicalSMILES,
		InChIKey:         dto.InChIKey,
		MolecularFormula: dto.MolecularFormula,
		Name:             dto.Name,
		Synonyms:         dto.Synonyms,
		Descriptors:      dto.Descriptors,
		Fingerprints:     make(map[mtypes.FingerprintType]*Fingerprint),
	}
	for fpType, data := range dto.Fingerprints {
		length := fpType.DefaultLength()
		if length == 0 {
			length = len(data) * 8
		}
		mol.Fingerprints[fpType] = FingerprintFromBytes(fpType, data, length)
	}
	return mol
}

// Events returns unpublished domain events and clears the internal list.
func (m *Molecule) Events() []DomainEvent {
	events := m.events
	m.events = nil
	return events
}
