// Package screening provides the candidate corpus model, bulk dataset
// readers, and the ranking/filtering stage of the virtual screening pipeline.
package screening

import (
	"github.com/turtacn/ChemScreen/internal/domain/molecule"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Candidates and Corpus
// ─────────────────────────────────────────────────────────────────────────────

// Candidate is one screenable entry of a corpus. Mol is parsed eagerly at
// load time so scoring never fails on syntax.
type Candidate struct {
	// Index is the zero-based position in the source corpus; rankers use it
	// to keep ties stable.
	Index int
	// RefID is the caller-supplied identifier (second column of a .smi file
	// or the ID column of a CSV), or a generated ordinal when absent.
	RefID  string
	SMILES string
	Name   string
	Mol    *molecule.Molecule
}

// Corpus is an immutable, ordered collection of candidates.
type Corpus struct {
	candidates []Candidate
}

// NewCorpus builds a corpus from parsed candidates. Empty corpora are
// rejected so screening callers cannot silently rank nothing.
func NewCorpus(candidates []Candidate) (*Corpus, error) {
	if len(candidates) == 0 {
		return nil, errors.New(errors.ErrCodeCorpusEmpty, "corpus contains no candidates")
	}
	owned := make([]Candidate, len(candidates))
	copy(owned, candidates)
	for i := range owned {
		owned[i].Index = i
	}
	return &Corpus{candidates: owned}, nil
}

// Len returns the number of candidates.
func (c *Corpus) Len() int { return len(c.candidates) }

// At returns the candidate at position i.
func (c *Corpus) At(i int) Candidate { return c.candidates[i] }

// Candidates returns a copy of the candidate slice.
func (c *Corpus) Candidates() []Candidate {
	out := make([]Candidate, len(c.candidates))
	copy(out, c.candidates)
	return out
}
