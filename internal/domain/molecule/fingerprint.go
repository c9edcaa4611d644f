package molecule

import (
	"encoding/binary"
	"hash/fnv"
	"math/bits"
	"sort"

	"github.com/turtacn/ChemScreen/pkg/errors"
	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint Bit Vector
// ─────────────────────────────────────────────────────────────────────────────

// Fingerprint is a fixed-length bit vector encoding structural features of a
// molecule. Bit vectors of equal length and type are comparable with the
// similarity calculators in similarity.go.
type Fingerprint struct {
	Type   mtypes.FingerprintType
	Length int // number of bits
	words  []uint64
}

// NewFingerprint creates an all-zero fingerprint of the given type and
// bit length.
func NewFingerprint(fpType mtypes.FingerprintType, length int) *Fingerprint {
	return &Fingerprint{
		Type:   fpType,
		Length: length,
		words:  make([]uint64, (length+63)/64),
	}
}

// SetBit turns on bit i. Out-of-range indices are ignored.
func (fp *Fingerprint) SetBit(i int) {
	if i < 0 || i >= fp.Length {
		return
	}
	fp.words[i/64] |= 1 << (uint(i) % 64)
}

// Bit reports whether bit i is set.
func (fp *Fingerprint) Bit(i int) bool {
	if i < 0 || i >= fp.Length {
		return false
	}
	return fp.words[i/64]&(1<<(uint(i)%64)) != 0
}

// PopCount returns the number of set bits.
func (fp *Fingerprint) PopCount() int {
	n := 0
	for _, w := range fp.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// OnBits returns the indices of all set bits in ascending order.
func (fp *Fingerprint) OnBits() []int {
	var out []int
	for wi, w := range fp.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi*64+b)
			w &= w - 1
		}
	}
	return out
}

// ToBytes serializes the bit vector little-endian, bit 0 first. The result
// always has Length/8 bytes (Length is a multiple of 8 for Morgan; MACCS
// rounds up).
func (fp *Fingerprint) ToBytes() []byte {
	out := make([]byte, (fp.Length+7)/8)
	buf := make([]byte, 8)
	for wi, w := range fp.words {
		binary.LittleEndian.PutUint64(buf, w)
		copy(out[wi*8:], buf)
	}
	return out
}

// FingerprintFromBytes reconstructs a fingerprint from its serialized form.
func FingerprintFromBytes(fpType mtypes.FingerprintType, data []byte, length int) *Fingerprint {
	fp := NewFingerprint(fpType, length)
	for i := 0; i < len(data) && i/8 < len(fp.words); i++ {
		fp.words[i/8] |= uint64(data[i]) << (uint(i%8) * 8)
	}
	return fp
}

// intersectionCount returns the number of bits set in both fingerprints.
func intersectionCount(a, b *Fingerprint) int {
	n := 0
	for i := range a.words {
		n += bits.OnesCount64(a.words[i] & b.words[i])
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Morgan (Circular) Fingerprint
// ─────────────────────────────────────────────────────────────────────────────

// MorganFingerprint computes a circular fingerprint of the given radius,
// hashed into nbits bits. Each atom contributes one feature per radius level:
// level 0 is the atom's own invariant, and each further level folds in the
// sorted invariants of the atom's neighborhood, so two set bits colliding
// requires identical environments or a hash collision.
func MorganFingerprint(g *Graph, radius, nbits int) (*Fingerprint, error) {
	if nbits <= 0 || nbits%8 != 0 {
		return nil, errors.Newf(errors.ErrCodeFingerprintFailed,
			"morgan bit count must be a positive multiple of 8, got %d", nbits)
	}
	if radius < 0 {
		return nil, errors.Newf(errors.ErrCodeFingerprintFailed,
			"morgan radius must be >= 0, got %d", radius)
	}

	fp := NewFingerprint(mtypes.FingerprintMorgan, nbits)

	inv := make([]uint64, len(g.Atoms))
	for i := range g.Atoms {
		inv[i] = initialAtomInvariant(g, i)
		fp.SetBit(int(inv[i] % uint64(nbits)))
	}

	next := make([]uint64, len(g.Atoms))
	for r := 0; r < radius; r++ {
		for i := range g.Atoms {
			next[i] = expandedInvariant(g, i, inv)
			fp.SetBit(int(next[i] % uint64(nbits)))
		}
		inv, next = next, inv
	}
	return fp, nil
}

// initialAtomInvariant hashes the constitution-level properties of one atom:
// element, degree, charge, hydrogen count, aromaticity, and ring membership.
func initialAtomInvariant(g *Graph, i int) uint64 {
	a := g.Atoms[i]
	h := fnv.New64a()
	h.Write([]byte(a.Element))
	writeInt := func(v int) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeInt(g.Degree(i))
	writeInt(a.Charge)
	writeInt(g.ImplicitHydrogens(i))
	writeInt(boolToInt(a.Aromatic))
	writeInt(boolToInt(a.InRing))
	return h.Sum64()
}

// expandedInvariant combines an atom's current invariant with the sorted
// (bond, neighbor invariant) pairs of its immediate neighborhood.
func expandedInvariant(g *Graph, i int, inv []uint64) uint64 {
	type pair struct {
		bond uint64
		nb   uint64
	}
	pairs := make([]pair, 0, g.Degree(i))
	for _, bi := range g.BondsOf(i) {
		b := g.Bonds[bi]
		code := uint64(b.Order)
		if b.Aromatic {
			code = 4
		}
		pairs = append(pairs, pair{bond: code, nb: inv[b.Other(i)]})
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].bond != pairs[b].bond {
			return pairs[a].bond < pairs[b].bond
		}
		return pairs[a].nb < pairs[b].nb
	})

	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], inv[i])
	h.Write(buf[:])
	for _, p := range pairs {
		binary.LittleEndian.PutUint64(buf[:], p.bond)
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], p.nb)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// MACCS Keys
// ─────────────────────────────────────────────────────────────────────────────

// MACCSBits is the fixed length of a MACCS key fingerprint.
const MACCSBits = 166

// maccsKey pairs a 1-based MACCS key number with its structural predicate.
// The table covers the element, ring, and functional-group keys that drive
// most of the Tanimoto signal; pattern keys requiring full SMARTS matching
// are left unset.
type maccsKey struct {
	bit  int
	test func(*Graph) bool
}

var maccsKeys = []maccsKey{
	// Element presence.
	{103, hasElement("Cl")},
	{121, func(g *Graph) bool { return countElement(g, "N") > 0 && ringAtomCount(g, "N") > 0 }},
	{134, hasElement("F")},
	{46, hasElement("Br")},
	{27, hasElement("I")},
	{88, hasElement("S")},
	{29, hasElement("P")},
	{161, hasElement("N")},
	{164, hasElement("O")},
	{102, func(g *Graph) bool { return countElement(g, "O") > 1 }},
	{142, func(g *Graph) bool { return countElement(g, "N") > 1 }},
	{146, func(g *Graph) bool { return countElement(g, "O") > 2 }},
	{127, func(g *Graph) bool { return countElement(g, "N") > 2 }},

	// Ring features.
	{163, func(g *Graph) bool { return hasRingOfSize(g, 6) }},
	{96, func(g *Graph) bool { return hasRingOfSize(g, 5) }},
	{101, func(g *Graph) bool { return hasRingOfSize(g, 8) || hasRingOfSize(g, 7) }},
	{145, func(g *Graph) bool { return g.AromaticRingCount() > 1 }},
	{162, func(g *Graph) bool { return g.AromaticRingCount() > 0 }},
	{125, func(g *Graph) bool { return g.AromaticRingCount() > 2 }},
	{137, func(g *Graph) bool { return heteroRingCount(g) > 0 }},
	{114, func(g *Graph) bool { return hasRingOfSize(g, 4) }},
	{110, func(g *Graph) bool { return hasRingOfSize(g, 3) }},

	// Bond orders.
	{165, func(g *Graph) bool { return len(g.Rings()) > 0 }},
	{99, func(g *Graph) bool { return hasBondOrder(g, 2) }},
	{18, func(g *Graph) bool { return hasBondOrder(g, 3) }},

	// Functional groups.
	{139, hasHydroxyl},
	{154, hasCarbonyl},
	{157, hasEtherOxygen},
	{160, hasMethyl},
	{84, hasPrimaryAmine},
	{153, func(g *Graph) bool { return hasCarbonyl(g) && hasHydroxyl(g) }},
	{50, hasCarboxylicAcid},
	{49, func(g *Graph) bool { return chargedAtomCount(g) > 0 }},
	{135, hasNitro},
	{92, hasAmide},
	{117, hasNitrileCarbon},
	{151, hasNHGroup},
	{93, func(g *Graph) bool { return hasElement("S")(g) && hasCarbonyl(g) }},
	{41, hasSulfonyl},

	// Counts and topology.
	{112, func(g *Graph) bool { return maxDegree(g) >= 4 }},
	{155, func(g *Graph) bool { return maxDegree(g) >= 3 }},
	{166, func(g *Graph) bool { return g.componentCount() > 1 }},
	{124, func(g *Graph) bool { return heteroatomCount(g) > 1 }},
	{158, func(g *Graph) bool { return countBondedPair(g, "C", "N") > 0 }},
	{159, func(g *Graph) bool { return countElement(g, "O") > 3 }},
	{143, func(g *Graph) bool { return countBondedPair(g, "O", "C") > 1 }},
	{144, func(g *Graph) bool { return nonRingDoubleBondCount(g) > 0 }},
	{150, func(g *Graph) bool { return RotatableBonds(g) > 2 }},
	{129, func(g *Graph) bool { return countElement(g, "C") > 6 }},
	{140, func(g *Graph) bool { return countElement(g, "O") > 0 && ringAtomCount(g, "O") > 0 }},
	{120, func(g *Graph) bool { return ringHeteroPairCount(g) > 0 }},
}

// MACCSFingerprint computes the 166-bit MACCS key fingerprint. Keys are
// 1-based; key n maps to bit n-1.
func MACCSFingerprint(g *Graph) (*Fingerprint, error) {
	if g == nil || len(g.Atoms) == 0 {
		return nil, errors.New(errors.ErrCodeFingerprintFailed, "empty molecular graph")
	}
	fp := NewFingerprint(mtypes.FingerprintMACCS, MACCSBits)
	for _, k := range maccsKeys {
		if k.test(g) {
			fp.SetBit(k.bit - 1)
		}
	}
	return fp, nil
}

// ComputeFingerprint dispatches on fingerprint type with the platform's
// standard parameters (Morgan radius 2).
func ComputeFingerprint(g *Graph, fpType mtypes.FingerprintType, nbits int) (*Fingerprint, error) {
	switch fpType {
	case mtypes.FingerprintMACCS:
		return MACCSFingerprint(g)
	case mtypes.FingerprintMorgan:
		if nbits == 0 {
			nbits = mtypes.FingerprintMorgan.DefaultLength()
		}
		return MorganFingerprint(g, 2, nbits)
	default:
		return nil, errors.Newf(errors.ErrCodeFingerprintUnsupported,
			"unsupported fingerprint type %q", fpType)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// MACCS Predicates
// ─────────────────────────────────────────────────────────────────────────────

func hasElement(el string) func(*Graph) bool {
	return func(g *Graph) bool { return countElement(g, el) > 0 }
}

func countElement(g *Graph, el string) int {
	n := 0
	for _, a := range g.Atoms {
		if a.Element == el {
			n++
		}
	}
	return n
}

func ringAtomCount(g *Graph, el string) int {
	n := 0
	for _, a := range g.Atoms {
		if a.Element == el && a.InRing {
			n++
		}
	}
	return n
}

func heteroatomCount(g *Graph) int {
	n := 0
	for _, a := range g.Atoms {
		if a.Element != "C" && a.Element != "H" {
			n++
		}
	}
	return n
}

func chargedAtomCount(g *Graph) int {
	n := 0
	for _, a := range g.Atoms {
		if a.Charge != 0 {
			n++
		}
	}
	return n
}

func maxDegree(g *Graph) int {
	m := 0
	for i := range g.Atoms {
		if d := g.Degree(i); d > m {
			m = d
		}
	}
	return m
}

func hasRingOfSize(g *Graph, size int) bool {
	for _, ring := range g.Rings() {
		if len(ring) == size {
			return true
		}
	}
	return false
}

func heteroRingCount(g *Graph) int {
	n := 0
	for _, ring := range g.Rings() {
		for _, ai := range ring {
			if g.Atoms[ai].Element != "C" {
				n++
				break
			}
		}
	}
	return n
}

func ringHeteroPairCount(g *Graph) int {
	n := 0
	for _, ring := range g.Rings() {
		hetero := 0
		for _, ai := range ring {
			if g.Atoms[ai].Element != "C" {
				hetero++
			}
		}
		if hetero >= 2 {
			n++
		}
	}
	return n
}

func hasBondOrder(g *Graph, order int) bool {
	for _, b := range g.Bonds {
		if !b.Aromatic && b.Order == order {
			return true
		}
	}
	return false
}

func nonRingDoubleBondCount(g *Graph) int {
	n := 0
	for _, b := range g.Bonds {
		if !b.InRing && !b.Aromatic && b.Order == 2 {
			n++
		}
	}
	return n
}

func countBondedPair(g *Graph, el1, el2 string) int {
	n := 0
	for _, b := range g.Bonds {
		a, c := g.Atoms[b.From].Element, g.Atoms[b.To].Element
		if (a == el1 && c == el2) || (a == el2 && c == el1) {
			n++
		}
	}
	return n
}

func hasHydroxyl(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element == "O" && !a.Aromatic && g.ImplicitHydrogens(i) > 0 {
			return true
		}
	}
	return false
}

func hasCarbonyl(g *Graph) bool {
	for _, b := range g.Bonds {
		if b.Order != 2 || b.Aromatic {
			continue
		}
		a, c := g.Atoms[b.From].Element, g.Atoms[b.To].Element
		if (a == "C" && c == "O") || (a == "O" && c == "C") {
			return true
		}
	}
	return false
}

func hasEtherOxygen(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element != "O" || a.Aromatic || g.Degree(i) != 2 {
			continue
		}
		carbons := 0
		for _, nb := range g.Neighbors(i) {
			if g.Atoms[nb].Element == "C" {
				carbons++
			}
		}
		if carbons == 2 {
			return true
		}
	}
	return false
}

func hasMethyl(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element == "C" && !a.Aromatic && g.Degree(i) == 1 && g.ImplicitHydrogens(i) == 3 {
			return true
		}
	}
	return false
}

func hasPrimaryAmine(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element == "N" && !a.Aromatic && g.ImplicitHydrogens(i) >= 2 {
			return true
		}
	}
	return false
}

func hasNHGroup(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element == "N" && g.ImplicitHydrogens(i) >= 1 {
			return true
		}
	}
	return false
}

// hasCarboxylicAcid looks for a carbon with both a double-bonded oxygen and a
// hydroxyl oxygen.
func hasCarboxylicAcid(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element != "C" {
			continue
		}
		doubleO, hydroxylO := false, false
		for _, bi := range g.BondsOf(i) {
			b := g.Bonds[bi]
			nb := b.Other(i)
			if g.Atoms[nb].Element != "O" {
				continue
			}
			if b.Order == 2 && !b.Aromatic {
				doubleO = true
			} else if g.ImplicitHydrogens(nb) > 0 || g.Atoms[nb].Charge == -1 {
				hydroxylO = true
			}
		}
		if doubleO && hydroxylO {
			return true
		}
	}
	return false
}

// hasAmide looks for a carbonyl carbon bonded to nitrogen.
func hasAmide(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element != "C" {
			continue
		}
		doubleO, singleN := false, false
		for _, bi := range g.BondsOf(i) {
			b := g.Bonds[bi]
			nb := b.Other(i)
			if g.Atoms[nb].Element == "O" && b.Order == 2 && !b.Aromatic {
				doubleO = true
			}
			if g.Atoms[nb].Element == "N" && b.Order == 1 && !b.Aromatic {
				singleN = true
			}
		}
		if doubleO && singleN {
			return true
		}
	}
	return false
}

func hasNitro(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element != "N" {
			continue
		}
		oxygens := 0
		for _, nb := range g.Neighbors(i) {
			if g.Atoms[nb].Element == "O" {
				oxygens++
			}
		}
		if oxygens >= 2 {
			return true
		}
	}
	return false
}

func hasNitrileCarbon(g *Graph) bool {
	for _, b := range g.Bonds {
		if b.Order != 3 {
			continue
		}
		a, c := g.Atoms[b.From].Element, g.Atoms[b.To].Element
		if (a == "C" && c == "N") || (a == "N" && c == "C") {
			return true
		}
	}
	return false
}

func hasSulfonyl(g *Graph) bool {
	for i, a := range g.Atoms {
		if a.Element != "S" {
			continue
		}
		doubleO := 0
		for _, bi := range g.BondsOf(i) {
			b := g.Bonds[bi]
			if g.Atoms[b.Other(i)].Element == "O" && b.Order == 2 {
				doubleO++
			}
		}
		if doubleO >= 2 {
			return true
		}
	}
	return false
}
