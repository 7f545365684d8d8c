// Package boost implements a small gradient-boosted tree ensemble for
// multiclass classification over dense feature matrices. Training uses
// softmax boosting with Newton leaf values; trees are depth-limited
// regression trees fitted to per-class gradients.
package boost

import (
	"math"
	"sort"
)

// regularization term added to hessian sums when computing split gain and
// leaf values.
const lambda = 1.0

// Node is one node of a regression tree. Leaf nodes carry a value; split
// nodes route samples by comparing one feature against a threshold.
type Node struct {
	Threshold float64
	Value     float64
	Feature   int
	Left      int
	Right     int
	Leaf      bool
}

// Tree is a flattened regression tree; node 0 is the root.
type Tree struct {
	Nodes []Node
}

// Predict routes a sample to its leaf value.
func (t *Tree) Predict(x []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// treeBuilder grows one tree on gradients and hessians for a subset of
// features. The gain bookkeeping feeds global feature importances.
type treeBuilder struct {
	matrix   [][]float64
	grad     []float64
	hess     []float64
	features []int
	gains    []float64
	maxDepth int
	minLeaf  int
}

func (b *treeBuilder) build(samples []int) *Tree {
	tree := &Tree{}
	b.grow(tree, samples, 0)
	return tree
}

// grow appends the subtree for samples and returns its root index.
func (b *treeBuilder) grow(tree *Tree, samples []int, depth int) int {
	gradSum, hessSum := b.sums(samples)

	idx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{Leaf: true, Value: leafValue(gradSum, hessSum)})

	if depth >= b.maxDepth || len(samples) < 2*b.minLeaf {
		return idx
	}

	feat, threshold, gain, ok := b.bestSplit(samples, gradSum, hessSum)
	if !ok {
		return idx
	}

	var left, right []int
	for _, s := range samples {
		if b.matrix[s][feat] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	b.gains[feat] += gain

	leftIdx := b.grow(tree, left, depth+1)
	rightIdx := b.grow(tree, right, depth+1)

	tree.Nodes[idx] = Node{
		Feature:   feat,
		Threshold: threshold,
		Left:      leftIdx,
		Right:     rightIdx,
	}
	return idx
}

func (b *treeBuilder) sums(samples []int) (gradSum, hessSum float64) {
	for _, s := range samples {
		gradSum += b.grad[s]
		hessSum += b.hess[s]
	}
	return gradSum, hessSum
}

// bestSplit scans every candidate feature for the threshold with the
// highest gain. Features are visited in index order and improvements must
// be strict, so tie-breaking is deterministic.
func (b *treeBuilder) bestSplit(samples []int, gradSum, hessSum float64) (feat int, threshold, gain float64, ok bool) {
	baseScore := score(gradSum, hessSum)
	bestGain := 1e-9

	order := make([]int, len(samples))
	for _, f := range b.features {
		copy(order, samples)
		sort.Slice(order, func(i, j int) bool {
			return b.matrix[order[i]][f] < b.matrix[order[j]][f]
		})

		var gradLeft, hessLeft float64
		for i := 0; i < len(order)-1; i++ {
			s := order[i]
			gradLeft += b.grad[s]
			hessLeft += b.hess[s]

			// Can't split between identical feature values.
			if b.matrix[order[i]][f] == b.matrix[order[i+1]][f] {
				continue
			}
			if i+1 < b.minLeaf || len(order)-i-1 < b.minLeaf {
				continue
			}

			splitGain := score(gradLeft, hessLeft) + score(gradSum-gradLeft, hessSum-hessLeft) - baseScore
			if splitGain > bestGain {
				bestGain = splitGain
				feat = f
				threshold = (b.matrix[order[i]][f] + b.matrix[order[i+1]][f]) / 2
				ok = true
			}
		}
	}

	return feat, threshold, bestGain, ok
}

func score(gradSum, hessSum float64) float64 {
	return gradSum * gradSum / (hessSum + lambda)
}

func leafValue(gradSum, hessSum float64) float64 {
	v := gradSum / (hessSum + lambda)
	// Clip extreme steps for numerical stability.
	return math.Max(-4, math.Min(4, v))
}
