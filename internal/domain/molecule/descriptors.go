package molecule

import (
	"fmt"
	"sort"
	"strings"

	mtypes "github.com/turtacn/ChemScreen/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Atomic Data
// ─────────────────────────────────────────────────────────────────────────────

// atomicMass holds standard atomic weights for the elements the parser
// commonly encounters. Unknown elements contribute zero mass.
var atomicMass = map[string]float64{
	"H": 1.008, "B": 10.811, "C": 12.011, "N": 14.007, "O": 15.999,
	"F": 18.998, "Na": 22.990, "Mg": 24.305, "Si": 28.086, "P": 30.974,
	"S": 32.065, "Cl": 35.453, "K": 39.098, "Ca": 40.078, "Fe": 55.845,
	"Zn": 65.380, "Se": 78.971, "Br": 79.904, "I": 126.904,
}

// crippenContribution gives a per-atom logP increment. The values are a
// coarse additive scheme in the spirit of Wildman-Crippen: hydrophobic
// carbons push logP up, polar heteroatoms pull it down.
func crippenContribution(g *Graph, i int) float64 {
	a := g.Atoms[i]
	switch a.Element {
	case "C":
		if a.Aromatic {
			return 0.29
		}
		// Carbons bonded to heteroatoms are less hydrophobic.
		for _, nb := range g.Neighbors(i) {
			switch g.Atoms[nb].Element {
			case "N", "O", "S", "P":
				return -0.05
			}
		}
		return 0.14
	case "N":
		if a.Aromatic {
			return -0.53
		}
		return -0.85
	case "O":
		if a.Aromatic {
			return -0.20
		}
		if g.ImplicitHydrogens(i) > 0 {
			return -0.72 // hydroxyl
		}
		return -0.52
	case "S":
		return 0.25
	case "P":
		return -0.50
	case "F":
		return 0.22
	case "Cl":
		return 0.65
	case "Br":
		return 0.86
	case "I":
		return 1.05
	default:
		return 0
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Descriptor Computation
// ─────────────────────────────────────────────────────────────────────────────

// ComputeDescriptors derives the physicochemical descriptor block from a
// parsed molecular graph. All values are constitution-based estimates; no 3D
// information is used.
func ComputeDescriptors(g *Graph) mtypes.Descriptors {
	return mtypes.Descriptors{
		MolecularWeight: MolecularWeight(g),
		LogP:            LogP(g),
		TPSA:            TPSA(g),
		HBondDonors:     HBondDonors(g),
		HBondAcceptors:  HBondAcceptors(g),
		RotatableBonds:  RotatableBonds(g),
		HeavyAtoms:      g.HeavyAtomCount(),
		AromaticRings:   g.AromaticRingCount(),
		RingCount:       g.RingCount(),
	}
}

// MolecularWeight sums standard atomic weights over heavy atoms and their
// implicit hydrogens.
func MolecularWeight(g *Graph) float64 {
	var mw float64
	for i, a := range g.Atoms {
		mw += atomicMass[a.Element]
		mw += float64(g.ImplicitHydrogens(i)) * atomicMass["H"]
	}
	return mw
}

// LogP estimates the octanol/water partition coefficient by summing per-atom
// contributions plus a hydrogen term on apolar carbons.
func LogP(g *Graph) float64 {
	var logp float64
	for i := range g.Atoms {
		logp += crippenContribution(g, i)
		if g.Atoms[i].Element == "C" {
			logp += float64(g.ImplicitHydrogens(i)) * 0.12
		}
	}
	return logp
}

// TPSA estimates topological polar surface area from nitrogen and oxygen
// environments, following the shape of Ertl's fragment contributions.
func TPSA(g *Graph) float64 {
	var tpsa float64
	for i, a := range g.Atoms {
		h := g.ImplicitHydrogens(i)
		switch a.Element {
		case "N":
			switch {
			case a.Aromatic && h == 0:
				tpsa += 12.89
			case a.Aromatic:
				tpsa += 15.79
			case h >= 2:
				tpsa += 26.02
			case h == 1:
				tpsa += 12.03
			default:
				tpsa += 3.24
			}
		case "O":
			switch {
			case a.Aromatic:
				tpsa += 13.14
			case h >= 1:
				tpsa += 20.23
			case hasDoubleBond(g, i):
				tpsa += 17.07
			default:
				tpsa += 9.23
			}
		case "S":
			if h >= 1 {
				tpsa += 38.80
			}
		}
	}
	return tpsa
}

func hasDoubleBond(g *Graph, i int) bool {
	for _, bi := range g.BondsOf(i) {
		if g.Bonds[bi].Order == 2 {
			return true
		}
	}
	return false
}

// HBondDonors counts N-H and O-H groups (Lipinski donor definition).
func HBondDonors(g *Graph) int {
	n := 0
	for i, a := range g.Atoms {
		if (a.Element == "N" || a.Element == "O") && g.ImplicitHydrogens(i) > 0 {
			n++
		}
	}
	return n
}

// HBondAcceptors counts nitrogen and oxygen atoms (Lipinski acceptor
// definition). Positively charged atoms are excluded.
func HBondAcceptors(g *Graph) int {
	n := 0
	for _, a := range g.Atoms {
		if (a.Element == "N" || a.Element == "O") && a.Charge <= 0 {
			n++
		}
	}
	return n
}

// RotatableBonds counts acyclic single bonds between two non-terminal heavy
// atoms. Triple-bond-adjacent linear bonds are still counted; amide bonds are
// not excluded.
func RotatableBonds(g *Graph) int {
	n := 0
	for _, b := range g.Bonds {
		if b.InRing || b.Aromatic || b.Order != 1 {
			continue
		}
		if g.Degree(b.From) < 2 || g.Degree(b.To) < 2 {
			continue
		}
		n++
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Molecular Formula
// ─────────────────────────────────────────────────────────────────────────────

// MolecularFormula renders the Hill-order formula: carbon first, hydrogen
// second, then remaining elements alphabetically.
func MolecularFormula(g *Graph) string {
	counts := make(map[string]int)
	for i, a := range g.Atoms {
		counts[a.Element]++
		counts["H"] += g.ImplicitHydrogens(i)
	}

	var sb strings.Builder
	write := func(el string) {
		c, ok := counts[el]
		if !ok || c == 0 {
			return
		}
		sb.WriteString(el)
		if c > 1 {
			fmt.Fprintf(&sb, "%d", c)
		}
		delete(counts, el)
	}

	write("C")
	write("H")
	rest := make([]string, 0, len(counts))
	for el := range counts {
		rest = append(rest, el)
	}
	sort.Strings(rest)
	for _, el := range rest {
		write(el)
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Lipinski Rule of Five
// ─────────────────────────────────────────────────────────────────────────────

// LipinskiReport itemizes the drug-likeness criteria for one molecule.
type LipinskiReport struct {
	MWOk     bool `json:"mw_ok"`    // MW <= 500
	LogPOk   bool `json:"logp_ok"`  // logP <= 5
	DonorOk  bool `json:"donor_ok"` // HBD <= 5
	AccepOk  bool `json:"accep_ok"` // HBA <= 10
	RotOk    bool `json:"rot_ok"`   // rotatable bonds <= 10
	Passed   bool `json:"passed"`   // at least 4 of 5 criteria met
	Failures int  `json:"failures"`
}

// EvaluateLipinski applies the extended rule-of-five screen to a descriptor
// block: the four Lipinski criteria plus a rotatable-bond cap. A molecule
// passes when at most one criterion is violated.
func EvaluateLipinski(d mtypes.Descriptors) LipinskiReport {
	r := LipinskiReport{
		MWOk:    d.MolecularWeight <= 500,
		LogPOk:  d.LogP <= 5,
		DonorOk: d.HBondDonors <= 5,
		AccepOk: d.HBondAcceptors <= 10,
		RotOk:   d.RotatableBonds <= 10,
	}
	for _, ok := range []bool{r.MWOk, r.LogPOk, r.DonorOk, r.AccepOk, r.RotOk} {
		if !ok {
			r.Failures++
		}
	}
	r.Passed = r.Failures <= 1
	return r
}
