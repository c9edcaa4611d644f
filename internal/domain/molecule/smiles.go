package molecule

import (
	"fmt"
	"strings"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// SMILES Parser
// ─────────────────────────────────────────────────────────────────────────────

// ParseSMILES parses a SMILES string into a molecular graph. It supports the
// organic subset (B, C, N, O, P, S, F, Cl, Br, I and their aromatic forms),
// bracket atoms with isotope, charge, chirality marks, and explicit hydrogen
// counts, branches, single/double/triple/aromatic bonds, directional bond
// symbols (accepted, treated as single), ring-closure digits including the
// %nn form, and dot-separated fragments.
//
// Chirality and cis/trans information is accepted and discarded; downstream
// descriptors and fingerprints are constitution-based.
func ParseSMILES(smiles string) (*Graph, error) {
	smiles = strings.TrimSpace(smiles)
	if smiles == "" {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "empty SMILES string")
	}

	p := &smilesParser{
		input: smiles,
		graph: &Graph{},
		open:  make(map[int]ringBondRef),
	}
	if err := p.run(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidSMILES, "invalid SMILES").
			WithDetailf("smiles=%s", smiles)
	}
	if err := p.graph.finalize(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidSMILES, "invalid SMILES").
			WithDetailf("smiles=%s", smiles)
	}
	return p.graph, nil
}

type ringBondRef struct {
	atom     int
	order    int // 0 means unspecified at the opening site
	aromatic bool
}

type smilesParser struct {
	input string
	pos   int
	graph *Graph

	prev      int             // index of the previous atom, -1 at a fragment start
	stack     []int           // branch return points
	open      map[int]ringBondRef
	nextOrder int  // pending bond order for the next atom or ring closure
	nextArom  bool // pending aromatic bond marker (':')
}

func (p *smilesParser) run() error {
	p.prev = -1
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return fmt.Errorf("branch opened before any atom at position %d", p.pos)
			}
			p.stack = append(p.stack, p.prev)
			p.pos++
		case c == ')':
			if len(p.stack) == 0 {
				return fmt.Errorf("unmatched ')' at position %d", p.pos)
			}
			p.prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++
		case c == '-':
			p.nextOrder = 1
			p.pos++
		case c == '=':
			p.nextOrder = 2
			p.pos++
		case c == '#':
			p.nextOrder = 3
			p.pos++
		case c == ':':
			p.nextArom = true
			p.pos++
		case c == '/' || c == '\\':
			// Directional single bond; geometry is not retained.
			p.nextOrder = 1
			p.pos++
		case c == '.':
			p.prev = -1
			p.nextOrder = 0
			p.nextArom = false
			p.pos++
		case c >= '0' && c <= '9':
			if err := p.closeRing(int(c - '0')); err != nil {
				return err
			}
			p.pos++
		case c == '%':
			if p.pos+2 >= len(p.input) || !isDigit(p.input[p.pos+1]) || !isDigit(p.input[p.pos+2]) {
				return fmt.Errorf("malformed %%nn ring closure at position %d", p.pos)
			}
			n := int(p.input[p.pos+1]-'0')*10 + int(p.input[p.pos+2]-'0')
			if err := p.closeRing(n); err != nil {
				return err
			}
			p.pos += 3
		case c == '[':
			atom, err := p.parseBracketAtom()
			if err != nil {
				return err
			}
			p.addAtom(atom)
		default:
			atom, ok := p.parseOrganicAtom()
			if !ok {
				return fmt.Errorf("unexpected character %q at position %d", c, p.pos)
			}
			p.addAtom(atom)
		}
	}
	if len(p.stack) != 0 {
		return fmt.Errorf("unclosed branch: %d '(' without ')'", len(p.stack))
	}
	if len(p.open) != 0 {
		return fmt.Errorf("unclosed ring bond: %d opening(s) never closed", len(p.open))
	}
	if p.nextOrder != 0 || p.nextArom {
		return fmt.Errorf("dangling bond symbol at end of input")
	}
	if len(p.graph.Atoms) == 0 {
		return fmt.Errorf("no atoms")
	}
	return nil
}

func (p *smilesParser) addAtom(a Atom) {
	idx := len(p.graph.Atoms)
	p.graph.Atoms = append(p.graph.Atoms, a)
	if p.prev >= 0 {
		p.graph.Bonds = append(p.graph.Bonds, p.makeBond(p.prev, idx, a.Aromatic))
	}
	p.prev = idx
	p.nextOrder = 0
	p.nextArom = false
}

// makeBond resolves the pending bond symbol against the aromaticity of both
// endpoints. Two aromatic atoms joined without an explicit symbol get an
// aromatic bond.
func (p *smilesParser) makeBond(from, to int, toAromatic bool) Bond {
	b := Bond{From: from, To: to, Order: 1}
	switch {
	case p.nextArom:
		b.Aromatic = true
	case p.nextOrder > 0:
		b.Order = p.nextOrder
	case p.graph.Atoms[from].Aromatic && toAromatic:
		b.Aromatic = true
	}
	return b
}

func (p *smilesParser) closeRing(n int) error {
	if p.prev < 0 {
		return fmt.Errorf("ring closure %d before any atom", n)
	}
	ref, ok := p.open[n]
	if !ok {
		order := p.nextOrder
		p.open[n] = ringBondRef{atom: p.prev, order: order, aromatic: p.nextArom}
		p.nextOrder = 0
		p.nextArom = false
		return nil
	}
	delete(p.open, n)
	if ref.atom == p.prev {
		return fmt.Errorf("ring closure %d bonds atom to itself", n)
	}
	b := Bond{From: ref.atom, To: p.prev, Order: 1}
	switch {
	case ref.aromatic || p.nextArom:
		b.Aromatic = true
	case ref.order > 0:
		b.Order = ref.order
	case p.nextOrder > 0:
		b.Order = p.nextOrder
	case p.graph.Atoms[ref.atom].Aromatic && p.graph.Atoms[p.prev].Aromatic:
		b.Aromatic = true
	}
	p.graph.Bonds = append(p.graph.Bonds, b)
	p.nextOrder = 0
	p.nextArom = false
	return nil
}

// parseOrganicAtom consumes an organic-subset atom outside brackets.
// Two-letter symbols Cl and Br take precedence over C and B.
func (p *smilesParser) parseOrganicAtom() (Atom, bool) {
	rest := p.input[p.pos:]
	switch {
	case strings.HasPrefix(rest, "Cl"):
		p.pos += 2
		return Atom{Element: "Cl", ExplicitH: -1}, true
	case strings.HasPrefix(rest, "Br"):
		p.pos += 2
		return Atom{Element: "Br", ExplicitH: -1}, true
	}
	c := rest[0]
	switch c {
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		p.pos++
		return Atom{Element: string(c), ExplicitH: -1}, true
	case 'b', 'c', 'n', 'o', 'p', 's':
		p.pos++
		return Atom{Element: strings.ToUpper(string(c)), Aromatic: true, ExplicitH: -1}, true
	}
	return Atom{}, false
}

// parseBracketAtom consumes a bracket atom starting at '['. Grammar:
// [isotope? symbol chirality? hcount? charge? class?]
func (p *smilesParser) parseBracketAtom() (Atom, error) {
	start := p.pos
	p.pos++ // consume '['

	atom := Atom{ExplicitH: 0}

	// Isotope.
	for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
		atom.Isotope = atom.Isotope*10 + int(p.input[p.pos]-'0')
		p.pos++
	}

	// Element symbol: uppercase(+lowercase) or aromatic lowercase.
	if p.pos >= len(p.input) {
		return atom, fmt.Errorf("unterminated bracket atom at position %d", start)
	}
	c := p.input[p.pos]
	switch {
	case c >= 'A' && c <= 'Z':
		// Two-letter symbols have a lowercase second letter; the hydrogen
		// count marker is uppercase H, so no ambiguity arises.
		sym := string(c)
		p.pos++
		if p.pos < len(p.input) && p.input[p.pos] >= 'a' && p.input[p.pos] <= 'z' {
			sym += string(p.input[p.pos])
			p.pos++
		}
		atom.Element = sym
	case c == 'c' || c == 'n' || c == 'o' || c == 'p' || c == 's' || c == 'b':
		atom.Element = strings.ToUpper(string(c))
		atom.Aromatic = true
		p.pos++
		if atom.Element == "S" && p.pos < len(p.input) && p.input[p.pos] == 'e' {
			atom.Element = "Se"
			p.pos++
		}
	case c == 'a' && strings.HasPrefix(p.input[p.pos:], "as"):
		atom.Element = "As"
		atom.Aromatic = true
		p.pos += 2
	case c == '*':
		atom.Element = "*"
		p.pos++
	default:
		return atom, fmt.Errorf("invalid element in bracket atom at position %d", p.pos)
	}

	// Chirality marks, discarded.
	for p.pos < len(p.input) && p.input[p.pos] == '@' {
		p.pos++
	}
	if p.pos+1 < len(p.input) && (strings.HasPrefix(p.input[p.pos:], "TH") ||
		strings.HasPrefix(p.input[p.pos:], "AL") || strings.HasPrefix(p.input[p.pos:], "SP")) {
		p.pos += 2
		for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			p.pos++
		}
	}

	// Hydrogen count.
	if p.pos < len(p.input) && p.input[p.pos] == 'H' {
		p.pos++
		atom.ExplicitH = 1
		if p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			atom.ExplicitH = int(p.input[p.pos] - '0')
			p.pos++
		}
	}

	// Charge: +, -, ++, --, +2, -2.
	if p.pos < len(p.input) && (p.input[p.pos] == '+' || p.input[p.pos] == '-') {
		sign := 1
		if p.input[p.pos] == '-' {
			sign = -1
		}
		mark := p.input[p.pos]
		charge := 1
		p.pos++
		if p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			charge = int(p.input[p.pos] - '0')
			p.pos++
		} else {
			for p.pos < len(p.input) && p.input[p.pos] == mark {
				charge++
				p.pos++
			}
		}
		atom.Charge = sign * charge
	}

	// Atom class, discarded.
	if p.pos < len(p.input) && p.input[p.pos] == ':' {
		p.pos++
		if p.pos >= len(p.input) || !isDigit(p.input[p.pos]) {
			return atom, fmt.Errorf("malformed atom class at position %d", p.pos)
		}
		for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			p.pos++
		}
	}

	if p.pos >= len(p.input) || p.input[p.pos] != ']' {
		return atom, fmt.Errorf("unterminated bracket atom at position %d", start)
	}
	p.pos++
	return atom, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
