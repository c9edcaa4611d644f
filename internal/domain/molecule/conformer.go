package molecule

import (
	"math"
	"math/rand"

	"github.com/turtacn/ChemScreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Vectors
// ─────────────────────────────────────────────────────────────────────────────

// Vec3 is a point in 3D space, in angstroms.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3     { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Norm() float64        { return math.Sqrt(v.Dot(v)) }

// ─────────────────────────────────────────────────────────────────────────────
// Conformer
// ─────────────────────────────────────────────────────────────────────────────

// Conformer holds one 3D geometry for a molecular graph. Coords is indexed by
// atom index.
type Conformer struct {
	Coords []Vec3
	// Energy is the final force-field energy after refinement, in arbitrary
	// units. Lower is better; comparable only between conformers of the same
	// molecule.
	Energy float64
}

// idealBondLength returns the target distance for a bond, in angstroms.
func idealBondLength(b Bond) float64 {
	switch {
	case b.Aromatic:
		return 1.40
	case b.Order == 2:
		return 1.34
	case b.Order == 3:
		return 1.20
	default:
		return 1.53
	}
}

// EmbedConformer generates a 3D conformer for the graph by seeding a
// deterministic spatial layout and refining it with steepest descent over a
// simple spring force field: bonded atoms are pulled toward ideal bond
// lengths and nonbonded atoms repel below a cutoff. The same graph and seed
// always yield the same geometry.
func EmbedConformer(g *Graph, maxIterations int, seed int64) (*Conformer, error) {
	n := g.HeavyAtomCount()
	if n == 0 {
		return nil, errors.New(errors.ErrCodeConformerEmbeddingFailed, "empty molecular graph")
	}
	if maxIterations <= 0 {
		maxIterations = 200
	}

	coords := initialLayout(g, seed)
	energy := refine(g, coords, maxIterations)
	if math.IsNaN(energy) || math.IsInf(energy, 0) {
		return nil, errors.New(errors.ErrCodeConformerEmbeddingFailed,
			"geometry refinement diverged")
	}
	return &Conformer{Coords: coords, Energy: energy}, nil
}

// initialLayout walks the graph breadth-first from atom 0, placing each new
// atom one ideal bond length from its parent along a seeded pseudo-random
// direction. Disconnected fragments are offset along X so they never overlap.
func initialLayout(g *Graph, seed int64) []Vec3 {
	rng := rand.New(rand.NewSource(seed))
	n := g.HeavyAtomCount()
	coords := make([]Vec3, n)
	placed := make([]bool, n)

	fragmentOffset := 0.0
	for start := 0; start < n; start++ {
		if placed[start] {
			continue
		}
		coords[start] = Vec3{X: fragmentOffset}
		placed[start] = true
		fragmentOffset += 10.0

		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, bi := range g.BondsOf(cur) {
				b := g.Bonds[bi]
				nb := b.Other(cur)
				if placed[nb] {
					continue
				}
				dir := randomUnit(rng)
				coords[nb] = coords[cur].Add(dir.Scale(idealBondLength(b)))
				placed[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return coords
}

func randomUnit(rng *rand.Rand) Vec3 {
	for {
		v := Vec3{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		if norm := v.Norm(); norm > 1e-6 && norm <= 1 {
			return v.Scale(1 / norm)
		}
	}
}

const (
	bondSpringK     = 1.0
	repulsionCutoff = 3.0
	repulsionK      = 0.3
	descentStep     = 0.05
	convergenceTol  = 1e-4
)

// refine runs steepest descent in place and returns the final energy.
func refine(g *Graph, coords []Vec3, maxIterations int) float64 {
	n := len(coords)
	grad := make([]Vec3, n)
	prevEnergy := math.Inf(1)

	for iter := 0; iter < maxIterations; iter++ {
		for i := range grad {
			grad[i] = Vec3{}
		}
		energy := 0.0

		// Bonded springs.
		for _, b := range g.Bonds {
			d := coords[b.To].Sub(coords[b.From])
			dist := d.Norm()
			if dist < 1e-9 {
				continue
			}
			diff := dist - idealBondLength(b)
			energy += bondSpringK * diff * diff
			f := d.Scale(2 * bondSpringK * diff / dist)
			grad[b.From] = grad[b.From].Sub(f)
			grad[b.To] = grad[b.To].Add(f)
		}

		// Nonbonded repulsion below the cutoff.
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if _, bonded := g.BondBetween(i, j); bonded {
					continue
				}
				d := coords[j].Sub(coords[i])
				dist := d.Norm()
				if dist >= repulsionCutoff || dist < 1e-9 {
					continue
				}
				diff := repulsionCutoff - dist
				energy += repulsionK * diff * diff
				f := d.Scale(-2 * repulsionK * diff / dist)
				grad[i] = grad[i].Sub(f)
				grad[j] = grad[j].Add(f)
			}
		}

		for i := range coords {
			coords[i] = coords[i].Sub(grad[i].Scale(descentStep))
		}

		if math.Abs(prevEnergy-energy) < convergenceTol {
			return energy
		}
		prevEnergy = energy
	}
	return prevEnergy
}

// ─────────────────────────────────────────────────────────────────────────────
// Kabsch Superposition
// ─────────────────────────────────────────────────────────────────────────────

// AlignResult reports the outcome of superposing a probe conformer onto a
// reference.
type AlignResult struct {
	RMSD float64
	// Rotation is the optimal rotation matrix applied to the centered probe.
	Rotation [3][3]float64
	// Aligned holds the probe coordinates after superposition, in the
	// reference frame.
	Aligned []Vec3
}

// AlignConformers superposes probe onto ref with the Kabsch algorithm and
// returns the minimized RMSD. The conformers must have the same atom count;
// atom i of the probe is paired with atom i of the reference.
func AlignConformers(ref, probe *Conformer) (*AlignResult, error) {
	if ref == nil || probe == nil {
		return nil, errors.New(errors.ErrCodeAlignmentIncompatible, "nil conformer")
	}
	if len(ref.Coords) != len(probe.Coords) {
		return nil, errors.Newf(errors.ErrCodeAlignmentIncompatible,
			"atom counts differ: %d vs %d", len(ref.Coords), len(probe.Coords))
	}
	n := len(ref.Coords)
	if n == 0 {
		return nil, errors.New(errors.ErrCodeAlignmentIncompatible, "empty conformer")
	}

	refC := center(ref.Coords)
	probeC := center(probe.Coords)

	// Cross-covariance H = Σ probe_i ⊗ ref_i over centered coordinates.
	var h [3][3]float64
	for i := 0; i < n; i++ {
		p := probeC[i]
		q := refC[i]
		pv := [3]float64{p.X, p.Y, p.Z}
		qv := [3]float64{q.X, q.Y, q.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h[r][c] += pv[r] * qv[c]
			}
		}
	}

	rot := kabschRotation(h)

	aligned := make([]Vec3, n)
	var sumSq float64
	for i := 0; i < n; i++ {
		p := probeC[i]
		aligned[i] = Vec3{
			X: rot[0][0]*p.X + rot[0][1]*p.Y + rot[0][2]*p.Z,
			Y: rot[1][0]*p.X + rot[1][1]*p.Y + rot[1][2]*p.Z,
			Z: rot[2][0]*p.X + rot[2][1]*p.Y + rot[2][2]*p.Z,
		}
		d := aligned[i].Sub(refC[i])
		sumSq += d.Dot(d)
	}

	return &AlignResult{
		RMSD:     math.Sqrt(sumSq / float64(n)),
		Rotation: rot,
		Aligned:  aligned,
	}, nil
}

func center(coords []Vec3) []Vec3 {
	var centroid Vec3
	for _, c := range coords {
		centroid = centroid.Add(c)
	}
	centroid = centroid.Scale(1 / float64(len(coords)))
	out := make([]Vec3, len(coords))
	for i, c := range coords {
		out[i] = c.Sub(centroid)
	}
	return out
}

// kabschRotation computes the optimal rotation from the cross-covariance
// matrix H. The SVD H = U Σ Vᵀ is recovered from a Jacobi eigendecomposition
// of HᵀH, with U columns reconstructed through H and a determinant correction
// so the result is a proper rotation.
func kabschRotation(h [3][3]float64) [3][3]float64 {
	hth := matMulT(h)
	eigVals, eigVecs := jacobiEigen3(hth)

	// Sort eigenpairs descending.
	order := [3]int{0, 1, 2}
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if eigVals[order[j]] > eigVals[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	// V columns are eigenvectors of HᵀH; U columns are H·v / σ.
	var v, u [3][3]float64
	for k := 0; k < 3; k++ {
		idx := order[k]
		vk := [3]float64{eigVecs[0][idx], eigVecs[1][idx], eigVecs[2][idx]}
		sigma := math.Sqrt(math.Max(eigVals[idx], 0))
		var uk [3]float64
		if sigma > 1e-12 {
			for r := 0; r < 3; r++ {
				uk[r] = (h[r][0]*vk[0] + h[r][1]*vk[1] + h[r][2]*vk[2]) / sigma
			}
		} else {
			// Degenerate direction: complete an orthonormal basis.
			uk = orthoComplement(u, k)
		}
		for r := 0; r < 3; r++ {
			v[r][k] = vk[r]
			u[r][k] = uk[r]
		}
	}

	// R = V Uᵀ; flip the last column of V if R would be a reflection.
	r := matMulABt(v, u)
	if det3(r) < 0 {
		for row := 0; row < 3; row++ {
			v[row][2] = -v[row][2]
		}
		r = matMulABt(v, u)
	}
	return r
}

// orthoComplement returns a unit vector orthogonal to the first k columns
// of m.
func orthoComplement(m [3][3]float64, k int) [3]float64 {
	if k == 0 {
		return [3]float64{1, 0, 0}
	}
	a := [3]float64{m[0][0], m[1][0], m[2][0]}
	if k == 1 {
		// Any vector not parallel to a, orthogonalized.
		ref := [3]float64{1, 0, 0}
		if math.Abs(a[0]) > 0.9 {
			ref = [3]float64{0, 1, 0}
		}
		return normalize3(cross3(a, ref))
	}
	b := [3]float64{m[0][1], m[1][1], m[2][1]}
	return normalize3(cross3(a, b))
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize3(a [3]float64) [3]float64 {
	n := math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
	if n < 1e-12 {
		return [3]float64{1, 0, 0}
	}
	return [3]float64{a[0] / n, a[1] / n, a[2] / n}
}

func matMulT(h [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += h[k][i] * h[k][j]
			}
		}
	}
	return out
}

func matMulABt(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[j][k]
			}
		}
	}
	return out
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// jacobiEigen3 diagonalizes a symmetric 3x3 matrix with cyclic Jacobi
// rotations. Returns eigenvalues and an eigenvector matrix whose columns
// correspond to the eigenvalues.
func jacobiEigen3(m [3][3]float64) ([3]float64, [3][3]float64) {
	a := m
	v := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	for sweep := 0; sweep < 50; sweep++ {
		off := a[0][1]*a[0][1] + a[0][2]*a[0][2] + a[1][2]*a[1][2]
		if off < 1e-20 {
			break
		}
		for p := 0; p < 2; p++ {
			for q := p + 1; q < 3; q++ {
				if math.Abs(a[p][q]) < 1e-15 {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := math.Copysign(1, theta) / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				for k := 0; k < 3; k++ {
					akp, akq := a[k][p], a[k][q]
					a[k][p] = c*akp - s*akq
					a[k][q] = s*akp + c*akq
				}
				for k := 0; k < 3; k++ {
					apk, aqk := a[p][k], a[q][k]
					a[p][k] = c*apk - s*aqk
					a[q][k] = s*apk + c*aqk
				}
				for k := 0; k < 3; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}
	return [3]float64{a[0][0], a[1][1], a[2][2]}, v
}
