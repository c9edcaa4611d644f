// Package molecule provides the core chemistry domain model for the
// ChemScreen platform: the molecular graph parsed from SMILES, computed
// physicochemical descriptors, 2D fingerprints for similarity screening, and
// 3D conformers for shape alignment.
package molecule

import (
	"fmt"
	"sort"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Atoms and Bonds
// ─────────────────────────────────────────────────────────────────────────────

// Atom is a single heavy atom in the molecular graph. Hydrogens are implicit
// unless written explicitly in brackets.
type Atom struct {
	Element  string // element symbol, normalized capitalization ("C", "Cl")
	Aromatic bool   // written lowercase in SMILES
	Charge   int
	Isotope  int // 0 when unspecified
	// ExplicitH is the hydrogen count from a bracket atom, or -1 when the
	// count is implicit and derived from standard valence.
	ExplicitH int
	InRing    bool
}

// Bond connects two atoms by index. Aromatic bonds are stored with Order 1
// and Aromatic set; order arithmetic treats them as 1.5.
type Bond struct {
	From     int
	To       int
	Order    int
	Aromatic bool
	InRing   bool
}

// Other returns the endpoint of b that is not atom i.
func (b Bond) Other(i int) int {
	if b.From == i {
		return b.To
	}
	return b.From
}

// ─────────────────────────────────────────────────────────────────────────────
// Graph
// ─────────────────────────────────────────────────────────────────────────────

// Graph is the connectivity table of a parsed molecule. It is immutable after
// parsing; all descriptor and fingerprint code reads it concurrently without
// locks.
type Graph struct {
	Atoms []Atom
	Bonds []Bond

	// adjacency: per atom, the indices into Bonds of incident bonds.
	adj [][]int
	// rings: smallest set of smallest rings, each a list of atom indices.
	rings [][]int
}

// finalize builds adjacency, perceives rings, and fills implicit data.
// Called exactly once by the parser.
func (g *Graph) finalize() error {
	g.adj = make([][]int, len(g.Atoms))
	for bi, b := range g.Bonds {
		if b.From == b.To {
			return fmt.Errorf("atom %d bonded to itself", b.From)
		}
		g.adj[b.From] = append(g.adj[b.From], bi)
		g.adj[b.To] = append(g.adj[b.To], bi)
	}
	g.perceiveRings()
	g.aromatize()
	for i := range g.Atoms {
		if _, ok := defaultValence[g.Atoms[i].Element]; !ok && g.Atoms[i].ExplicitH < 0 {
			// Unknown elements must carry an explicit H count (bracket atom).
			g.Atoms[i].ExplicitH = 0
		}
	}
	return nil
}

// BondsOf returns the bond indices incident to atom i.
func (g *Graph) BondsOf(i int) []int { return g.adj[i] }

// Neighbors returns the atom indices adjacent to atom i.
func (g *Graph) Neighbors(i int) []int {
	out := make([]int, 0, len(g.adj[i]))
	for _, bi := range g.adj[i] {
		out = append(out, g.Bonds[bi].Other(i))
	}
	return out
}

// BondBetween returns the bond joining atoms i and j, if any.
func (g *Graph) BondBetween(i, j int) (Bond, bool) {
	for _, bi := range g.adj[i] {
		if g.Bonds[bi].Other(i) == j {
			return g.Bonds[bi], true
		}
	}
	return Bond{}, false
}

// Degree returns the number of heavy-atom neighbors of atom i.
func (g *Graph) Degree(i int) int { return len(g.adj[i]) }

// HeavyAtomCount returns the number of atoms in the graph. Hydrogens are
// never graph nodes.
func (g *Graph) HeavyAtomCount() int { return len(g.Atoms) }

// Rings returns the perceived smallest rings as atom index lists. The slice
// is shared; callers must not mutate it.
func (g *Graph) Rings() [][]int { return g.rings }

// RingCount returns the circuit rank of the graph, i.e. the number of
// independent rings.
func (g *Graph) RingCount() int {
	return len(g.Bonds) - len(g.Atoms) + g.componentCount()
}

// AromaticRingCount returns the number of perceived rings whose atoms are all
// aromatic.
func (g *Graph) AromaticRingCount() int {
	n := 0
	for _, ring := range g.rings {
		aromatic := true
		for _, ai := range ring {
			if !g.Atoms[ai].Aromatic {
				aromatic = false
				break
			}
		}
		if aromatic {
			n++
		}
	}
	return n
}

func (g *Graph) componentCount() int {
	seen := make([]bool, len(g.Atoms))
	count := 0
	for start := range g.Atoms {
		if seen[start] {
			continue
		}
		count++
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, nb := range g.Neighbors(cur) {
				if !seen[nb] {
					seen[nb] = true
					stack = append(stack, nb)
				}
			}
		}
	}
	return count
}

// ─────────────────────────────────────────────────────────────────────────────
// Ring Perception
// ─────────────────────────────────────────────────────────────────────────────

// perceiveRings marks ring membership on atoms and bonds and collects a
// smallest-ring set. A bond is a ring bond iff its endpoints stay connected
// when the bond is removed; for each ring bond the smallest cycle through it
// is recovered by BFS.
func (g *Graph) perceiveRings() {
	seenRing := make(map[string]bool)
	for bi := range g.Bonds {
		path := g.shortestPathAvoiding(g.Bonds[bi].From, g.Bonds[bi].To, bi)
		if path == nil {
			continue
		}
		g.Bonds[bi].InRing = true
		for _, ai := range path {
			g.Atoms[ai].InRing = true
		}
		key := ringKey(path)
		if !seenRing[key] {
			seenRing[key] = true
			g.rings = append(g.rings, path)
		}
	}
}

// shortestPathAvoiding returns the shortest atom path from src to dst that
// does not traverse bond skipBond, or nil when none exists. The returned path
// includes both endpoints, so it is exactly the ring containing skipBond.
func (g *Graph) shortestPathAvoiding(src, dst, skipBond int) []int {
	prev := make([]int, len(g.Atoms))
	for i := range prev {
		prev[i] = -1
	}
	prev[src] = src
	queue := []int{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			var path []int
			for at := dst; at != src; at = prev[at] {
				path = append(path, at)
			}
			path = append(path, src)
			return path
		}
		for _, bIdx := range g.adj[cur] {
			if bIdx == skipBond {
				continue
			}
			nb := g.Bonds[bIdx].Other(cur)
			if prev[nb] == -1 {
				prev[nb] = cur
				queue = append(queue, nb)
			}
		}
	}
	return nil
}

func ringKey(atoms []int) string {
	sorted := append([]int(nil), atoms...)
	sort.Ints(sorted)
	var sb strings.Builder
	for _, a := range sorted {
		fmt.Fprintf(&sb, "%d,", a)
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Aromaticity Perception
// ─────────────────────────────────────────────────────────────────────────────

// aromatize upgrades Kekulé-written rings to aromatic form so both spellings
// of a structure produce one graph, one canonical SMILES, and one fingerprint.
// A perceived ring becomes aromatic when every member is sp2-eligible and the
// ring's pi electron count satisfies Hückel's 4n+2 rule. Hydrogen counts are
// pinned before bond orders change, so aromatization never alters composition
// (a Kekulé pyrrole nitrogen keeps its hydrogen and writes as [nH]).
func (g *Graph) aromatize() {
	var flipAtoms []int
	flipBonds := make(map[int]bool)
	for _, ring := range g.rings {
		pi, ok := g.ringPiElectrons(ring)
		if !ok || pi < 2 || pi%4 != 2 {
			continue
		}
		inRing := make(map[int]bool, len(ring))
		for _, ai := range ring {
			inRing[ai] = true
		}
		flipAtoms = append(flipAtoms, ring...)
		for bi, b := range g.Bonds {
			if inRing[b.From] && inRing[b.To] {
				flipBonds[bi] = true
			}
		}
	}
	if len(flipBonds) == 0 {
		return
	}

	pinned := make(map[int]int)
	for _, ai := range flipAtoms {
		if g.Atoms[ai].ExplicitH < 0 {
			pinned[ai] = g.ImplicitHydrogens(ai)
		}
	}

	for _, ai := range flipAtoms {
		g.Atoms[ai].Aromatic = true
	}
	for bi := range flipBonds {
		if g.Bonds[bi].Order <= 2 {
			g.Bonds[bi].Order = 1
			g.Bonds[bi].Aromatic = true
		}
	}

	for ai, h := range pinned {
		if g.ImplicitHydrogens(ai) != h {
			g.Atoms[ai].ExplicitH = h
		}
	}
}

// ringPiElectrons counts the pi electrons a perceived ring contributes under
// a simple Hückel model. ok is false when any member cannot be sp2: a triple
// bond, two double bonds, an element outside the aromatic subset, or an
// uncharged saturated carbon all disqualify the ring.
func (g *Graph) ringPiElectrons(ring []int) (pi int, ok bool) {
	for _, ai := range ring {
		a := g.Atoms[ai]
		switch a.Element {
		case "C", "N", "O", "S", "P", "B":
		default:
			return 0, false
		}

		doubles := 0
		partner := -1
		for _, bi := range g.adj[ai] {
			b := g.Bonds[bi]
			if b.Aromatic {
				continue
			}
			switch b.Order {
			case 2:
				doubles++
				partner = b.Other(ai)
			case 3:
				return 0, false
			}
		}

		switch {
		case doubles > 1:
			return 0, false
		case doubles == 1:
			// An exocyclic double bond (carbonyl and friends) holds its
			// electrons out of the ring but leaves the atom sp2.
			if g.Atoms[partner].InRing {
				pi++
			}
		case a.Aromatic:
			pi++
		default:
			switch a.Element {
			case "N", "O", "S", "P":
				pi += 2 // lone pair donor
			case "C":
				if a.Charge >= 0 {
					return 0, false
				}
				pi += 2
			case "B":
				// empty p orbital, contributes nothing
			}
		}
	}
	return pi, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Valence and Implicit Hydrogens
// ─────────────────────────────────────────────────────────────────────────────

// defaultValence lists standard valences for the SMILES organic subset.
var defaultValence = map[string]int{
	"B": 3, "C": 4, "N": 3, "O": 2, "P": 3, "S": 2,
	"F": 1, "Cl": 1, "Br": 1, "I": 1, "H": 1,
}

// bondOrderSum returns twice the summed bond order at atom i, so aromatic
// bonds contribute 3 (i.e. order 1.5) without floating point.
func (g *Graph) bondOrderSum2x(i int) int {
	sum := 0
	for _, bi := range g.adj[i] {
		b := g.Bonds[bi]
		if b.Aromatic {
			sum += 3
		} else {
			sum += 2 * b.Order
		}
	}
	return sum
}

// ImplicitHydrogens returns the hydrogen count of atom i. Bracket atoms use
// their explicit count; organic-subset atoms fill up to standard valence,
// with aromatic bonds counted as order 1.5.
func (g *Graph) ImplicitHydrogens(i int) int {
	a := g.Atoms[i]
	if a.ExplicitH >= 0 {
		return a.ExplicitH
	}
	valence, ok := defaultValence[a.Element]
	if !ok {
		return 0
	}
	// Charge shifts the effective valence for N and O family atoms.
	valence += chargeValenceShift(a.Element, a.Charge)
	used := (g.bondOrderSum2x(i) + 1) / 2 // round 1.5 contributions up
	h := valence - used
	if h < 0 {
		// Hypervalent S and P are accepted without implicit hydrogens.
		return 0
	}
	return h
}

func chargeValenceShift(element string, charge int) int {
	switch element {
	case "N", "P":
		return charge
	case "O", "S":
		return charge
	case "C", "B":
		return -abs(charge)
	default:
		return 0
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// TotalHydrogens returns the summed hydrogen count over all atoms.
func (g *Graph) TotalHydrogens() int {
	total := 0
	for i := range g.Atoms {
		total += g.ImplicitHydrogens(i)
	}
	return total
}
