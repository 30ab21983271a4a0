package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(x float64) sparseVector {
	return sparseVector{idx: []int{0}, val: []float64{x}}
}

func TestLloydReseed(t *testing.T) {
	rows := []sparseVector{point(0), point(10), point(11)}
	sq := make([]float64, len(rows))
	for i, r := range rows {
		sq[i] = r.squaredNorm()
	}

	// The first point is alone in its cluster and farther from its centroid
	// than any other point; the third centroid attracts nothing.
	initial := func() [][]float64 { return [][]float64{{-5}, {10.5}, {100}} }

	for _, maxIter := range []int{1, 20} {
		res := lloyd(rows, sq, initial(), maxIter)
		require.Len(t, res.labels, 3)

		sizes := make([]int, 3)
		for _, l := range res.labels {
			require.GreaterOrEqual(t, l, 0)
			require.Less(t, l, 3)
			sizes[l]++
		}
		for c, n := range sizes {
			assert.Equal(t, 1, n, "cluster %d after %d iteration(s)", c, maxIter)
		}
		assert.Equal(t, 0, res.labels[0], "a singleton is never moved to fill another cluster")
	}
}

func TestFarthest(t *testing.T) {
	dists := []float64{9, 4, 1}
	labels := []int{0, 1, 1}
	assert.Equal(t, 1, farthest(dists, labels, []int{1, 2, 0}))
	assert.Equal(t, 0, farthest(dists, []int{0, 0, 1}, []int{2, 1, 0}))
}
