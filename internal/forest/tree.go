package forest

import (
	"math/rand"
	"sort"
)

// Node is one entry of a flattened regression tree. Leaves carry Value;
// internal nodes route x[Feature] <= Threshold to Left, otherwise Right.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a CART regression tree stored as a flat Node slice so it gob-encodes cleanly.
type Tree struct {
	Nodes []Node
}

// Predict walks the tree for a single feature vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeBuilder struct {
	x        [][]float64
	y        []float64
	params   Params
	mtry     int
	rng      *rand.Rand
	nodes    []Node
	features []int
}

func buildTree(x [][]float64, y []float64, sample []int, params Params, mtry int, rng *rand.Rand) *Tree {
	nFeatures := len(x[0])
	b := &treeBuilder{
		x:        x,
		y:        y,
		params:   params,
		mtry:     mtry,
		rng:      rng,
		features: make([]int, nFeatures),
	}
	for i := range b.features {
		b.features[i] = i
	}
	b.grow(sample, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) mean(idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

// grow appends the subtree for idx and returns its Node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Value: b.mean(idx)})

	if depth >= b.params.MaxDepth || len(idx) < 2*b.params.MinSamplesLeaf {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

// bestSplit searches mtry random features for the split with the largest
// reduction in squared error that keeps MinSamplesLeaf rows on both sides.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	b.rng.Shuffle(len(b.features), func(i, j int) {
		b.features[i], b.features[j] = b.features[j], b.features[i]
	})

	n := len(idx)
	var totalSum, totalSq float64
	for _, i := range idx {
		totalSum += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - totalSum*totalSum/float64(n)

	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, n)
	for _, f := range b.features[:b.mtry] {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			yi := b.y[sorted[k]]
			leftSum += yi
			leftSq += yi * yi

			leftN := k + 1
			rightN := n - leftN
			if leftN < b.params.MinSamplesLeaf {
				continue
			}
			if rightN < b.params.MinSamplesLeaf {
				break
			}
			cur := b.x[sorted[k]][f]
			next := b.x[sorted[k+1]][f]
			if cur == next {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(leftN)) + (rightSq - rightSum*rightSum/float64(rightN))
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
