package molecule

import (
	"fmt"
	"sort"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Canonical SMILES Writer
// ─────────────────────────────────────────────────────────────────────────────

// CanonicalSMILES renders a deterministic SMILES string for the graph. Atoms
// are ranked by iteratively refined invariants (a Morgan-style relaxation
// with lexicographic tie-breaking), then written by depth-first traversal
// that always visits lower-ranked neighbors first. Two graphs with the same
// constitution produce the same output regardless of input atom order.
func CanonicalSMILES(g *Graph) string {
	ranks := canonicalRanks(g)
	w := &smilesWriter{
		g:        g,
		ranks:    ranks,
		visited:  make([]bool, len(g.Atoms)),
		ringNums: make(map[[2]int]int),
	}
	return w.write()
}

// canonicalRanks assigns each atom a rank in [0, n) such that structurally
// distinct atoms receive distinct ranks wherever the refinement can separate
// them. Remaining ties are broken arbitrarily but deterministically.
func canonicalRanks(g *Graph) []int {
	n := len(g.Atoms)
	keys := make([]string, n)
	for i := range g.Atoms {
		a := g.Atoms[i]
		keys[i] = fmt.Sprintf("%s|%d|%d|%t|%d|%d",
			a.Element, g.Degree(i), a.Charge, a.Aromatic,
			g.ImplicitHydrogens(i), boolToInt(a.InRing))
	}
	ranks := ranksFromKeys(keys)

	for iter := 0; iter < n; iter++ {
		next := make([]string, n)
		for i := range g.Atoms {
			nbRanks := make([]string, 0, g.Degree(i))
			for _, bi := range g.BondsOf(i) {
				b := g.Bonds[bi]
				code := b.Order
				if b.Aromatic {
					code = 4
				}
				nbRanks = append(nbRanks, fmt.Sprintf("%d:%06d", code, ranks[b.Other(i)]))
			}
			sort.Strings(nbRanks)
			next[i] = fmt.Sprintf("%06d|%s", ranks[i], strings.Join(nbRanks, ","))
		}
		newRanks := ranksFromKeys(next)
		if equalInts(newRanks, ranks) {
			break
		}
		ranks = newRanks
	}
	return ranks
}

func ranksFromKeys(keys []string) []int {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	rankOf := make(map[string]int, len(sorted))
	for i, k := range sorted {
		if _, ok := rankOf[k]; !ok {
			rankOf[k] = i
		}
	}
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = rankOf[k]
	}
	return out
}

func equalInts(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type smilesWriter struct {
	g       *Graph
	ranks   []int
	visited []bool
	sb      strings.Builder

	ringNums map[[2]int]int // unordered atom pair -> ring closure number
	nextRing int
}

func (w *smilesWriter) write() string {
	// Ring-closure bonds: spanning-tree back edges, chosen rank-first so the
	// numbering is deterministic.
	w.assignRingClosures()

	starts := make([]int, 0)
	for i := range w.g.Atoms {
		starts = append(starts, i)
	}
	sort.Slice(starts, func(a, b int) bool { return w.ranks[starts[a]] < w.ranks[starts[b]] })

	first := true
	for _, s := range starts {
		if w.visited[s] {
			continue
		}
		if !first {
			w.sb.WriteByte('.')
		}
		first = false
		w.walk(s, -1)
	}
	return w.sb.String()
}

// assignRingClosures runs the same rank-ordered DFS as the writer and
// numbers each back edge in encounter order.
func (w *smilesWriter) assignRingClosures() {
	visited := make([]bool, len(w.g.Atoms))
	inTree := make(map[[2]int]bool)

	var dfs func(cur, from int)
	dfs = func(cur, from int) {
		visited[cur] = true
		for _, nb := range w.sortedNeighbors(cur) {
			if nb == from {
				continue
			}
			key := pairKey(cur, nb)
			if visited[nb] {
				if !inTree[key] {
					if _, ok := w.ringNums[key]; !ok {
						w.nextRing++
						w.ringNums[key] = w.nextRing
					}
				}
				continue
			}
			inTree[key] = true
			dfs(nb, cur)
		}
	}

	starts := make([]int, 0, len(w.g.Atoms))
	for i := range w.g.Atoms {
		starts = append(starts, i)
	}
	sort.Slice(starts, func(a, b int) bool { return w.ranks[starts[a]] < w.ranks[starts[b]] })
	for _, s := range starts {
		if !visited[s] {
			dfs(s, -1)
		}
	}
}

func (w *smilesWriter) sortedNeighbors(i int) []int {
	nbs := w.g.Neighbors(i)
	sort.Slice(nbs, func(a, b int) bool { return w.ranks[nbs[a]] < w.ranks[nbs[b]] })
	return nbs
}

func (w *smilesWriter) walk(cur, from int) {
	w.visited[cur] = true
	w.writeAtom(cur)

	w.writeClosureDigits(cur)

	// Children in rank order; all but the last go in branches.
	children := make([]int, 0)
	for _, nb := range w.sortedNeighbors(cur) {
		if nb == from || w.visited[nb] {
			continue
		}
		if _, isClosure := w.ringNums[pairKey(cur, nb)]; isClosure {
			continue
		}
		children = append(children, nb)
	}
	for ci, child := range children {
		last := ci == len(children)-1
		if !last {
			w.sb.WriteByte('(')
		}
		w.writeBondSymbol(cur, child)
		w.walk(child, cur)
		if !last {
			w.sb.WriteByte(')')
		}
	}
}

// writeClosureDigits emits ring closure numbers for every closure bond
// incident to cur.
func (w *smilesWriter) writeClosureDigits(cur int) {
	type closure struct {
		num int
		nb  int
	}
	var closures []closure
	for _, nb := range w.sortedNeighbors(cur) {
		if num, ok := w.ringNums[pairKey(cur, nb)]; ok {
			closures = append(closures, closure{num: num, nb: nb})
		}
	}
	sort.Slice(closures, func(a, b int) bool { return closures[a].num < closures[b].num })
	for _, c := range closures {
		w.writeBondSymbol(cur, c.nb)
		if c.num > 9 {
			fmt.Fprintf(&w.sb, "%%%d", c.num)
		} else {
			fmt.Fprintf(&w.sb, "%d", c.num)
		}
	}
}

func (w *smilesWriter) writeBondSymbol(a, b int) {
	bond, ok := w.g.BondBetween(a, b)
	if !ok || bond.Aromatic {
		return
	}
	switch bond.Order {
	case 1:
		// A single bond between two aromatic atoms must be explicit, or the
		// reader would infer an aromatic bond.
		if w.g.Atoms[a].Aromatic && w.g.Atoms[b].Aromatic {
			w.sb.WriteByte('-')
		}
	case 2:
		w.sb.WriteByte('=')
	case 3:
		w.sb.WriteByte('#')
	}
}

// writeAtom emits one atom, bracketed when it carries charge, isotope, an
// unusual element, or a hydrogen count that the organic subset cannot imply.
func (w *smilesWriter) writeAtom(i int) {
	a := w.g.Atoms[i]
	organic := isOrganicSubset(a.Element)
	needBracket := !organic || a.Charge != 0 || a.Isotope != 0 || a.ExplicitH >= 0

	sym := a.Element
	if a.Aromatic {
		sym = strings.ToLower(sym)
	}

	if !needBracket {
		w.sb.WriteString(sym)
		return
	}

	w.sb.WriteByte('[')
	if a.Isotope > 0 {
		fmt.Fprintf(&w.sb, "%d", a.Isotope)
	}
	w.sb.WriteString(sym)
	if h := w.g.ImplicitHydrogens(i); h == 1 {
		w.sb.WriteByte('H')
	} else if h > 1 {
		fmt.Fprintf(&w.sb, "H%d", h)
	}
	switch {
	case a.Charge == 1:
		w.sb.WriteByte('+')
	case a.Charge == -1:
		w.sb.WriteByte('-')
	case a.Charge > 1:
		fmt.Fprintf(&w.sb, "+%d", a.Charge)
	case a.Charge < -1:
		fmt.Fprintf(&w.sb, "-%d", -a.Charge)
	}
	w.sb.WriteByte(']')
}

func isOrganicSubset(el string) bool {
	switch el {
	case "B", "C", "N", "O", "P", "S", "F", "Cl", "Br", "I":
		return true
	}
	return false
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
