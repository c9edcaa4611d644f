// Package toxicity implements the Random-Forest toxicity regressor: CART
// regression trees, bootstrap-aggregated forests, and the validation
// utilities (train/test split, k-fold cross-validation) used to report model
// quality.
package toxicity

import (
	"math"
	"math/rand"
	"sort"
)

// ─────────────────────────────────────────────────────────────────────────────
// CART Regression Tree
// ─────────────────────────────────────────────────────────────────────────────

// treeNode is one node of a regression tree, serialized as JSON when a model
// is persisted. Leaves have Feature == -1.
type treeNode struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Value     float64   `json:"v"`
	Left      *treeNode `json:"l,omitempty"`
	Right     *treeNode `json:"r,omitempty"`
}

func (n *treeNode) isLeaf() bool { return n.Feature < 0 }

// treeParams bound tree growth.
type treeParams struct {
	maxDepth    int
	minLeafSize int
	// featuresPerSplit is the number of candidate features examined at each
	// split; 0 means all.
	featuresPerSplit int
}

// fitTree grows a regression tree on the rows of X indexed by idx,
// minimizing within-node variance. rng drives feature subsampling, making a
// fitted forest reproducible for a fixed seed.
func fitTree(X [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand) *treeNode {
	return growNode(X, y, idx, p, rng, 0)
}

func growNode(X [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand, depth int) *treeNode {
	node := &treeNode{Feature: -1, Value: meanOf(y, idx)}
	if len(idx) < 2*p.minLeafSize || (p.maxDepth > 0 && depth >= p.maxDepth) {
		return node
	}
	if varianceOf(y, idx, node.Value) < 1e-12 {
		return node
	}

	feature, threshold, ok := bestSplit(X, y, idx, p, rng)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < p.minLeafSize || len(right) < p.minLeafSize {
		return node
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = growNode(X, y, left, p, rng, depth+1)
	node.Right = growNode(X, y, right, p, rng, depth+1)
	return node
}

// bestSplit searches a random subset of features for the split minimizing
// the weighted sum of child variances.
func bestSplit(X [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand) (int, float64, bool) {
	nFeatures := len(X[idx[0]])
	candidates := featureSample(nFeatures, p.featuresPerSplit, rng)

	bestScore := math.Inf(1)
	bestFeature := -1
	bestThreshold := 0.0

	for _, f := range candidates {
		// Candidate thresholds are midpoints between distinct sorted values.
		values := make([]float64, 0, len(idx))
		for _, i := range idx {
			values = append(values, X[i][f])
		}
		sortFloats(values)

		for vi := 1; vi < len(values); vi++ {
			if values[vi] == values[vi-1] {
				continue
			}
			threshold := (values[vi] + values[vi-1]) / 2

			var sumL, sumR, sqL, sqR float64
			var nL, nR int
			for _, i := range idx {
				v := y[i]
				if X[i][f] <= threshold {
					sumL += v
					sqL += v * v
					nL++
				} else {
					sumR += v
					sqR += v * v
					nR++
				}
			}
			if nL < p.minLeafSize || nR < p.minLeafSize {
				continue
			}
			score := (sqL - sumL*sumL/float64(nL)) + (sqR - sumR*sumR/float64(nR))
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// featureSample draws k distinct feature indices without replacement. k <= 0
// or k >= n returns all features.
func featureSample(n, k int, rng *rand.Rand) []int {
	if k <= 0 || k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	perm := rng.Perm(n)
	return perm[:k]
}

func (n *treeNode) predict(x []float64) float64 {
	cur := n
	for !cur.isLeaf() {
		if x[cur.Feature] <= cur.Threshold {
			cur = cur.Left
		} else {
			cur = cur.Right
		}
	}
	return cur.Value
}

func meanOf(y []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func varianceOf(y []float64, idx []int, mean float64) float64 {
	var sum float64
	for _, i := range idx {
		d := y[i] - mean
		sum += d * d
	}
	return sum / float64(len(idx))
}

func sortFloats(v []float64) { sort.Float64s(v) }
