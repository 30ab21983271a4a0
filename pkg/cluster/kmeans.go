package cluster

import (
	"math"
	"math/rand/v2"
)

type kmeansResult struct {
	labels  []int
	inertia float64
	iters   int
}

// kmeans runs nInit seeded k-means++ restarts and keeps the lowest inertia.
// All restarts draw from one PCG stream so the result depends only on the seed.
func kmeans(rows []sparseVector, dim, k, nInit, maxIter int, seed uint64) kmeansResult {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	sq := make([]float64, len(rows))
	for i, r := range rows {
		sq[i] = r.squaredNorm()
	}

	var best kmeansResult
	for run := 0; run < nInit; run++ {
		centroids := initPlusPlus(rows, sq, dim, k, rng)
		res := lloyd(rows, sq, centroids, maxIter)
		if run == 0 || res.inertia < best.inertia {
			best = res
		}
	}
	return best
}

// initPlusPlus picks k initial centroids with D² weighting.
func initPlusPlus(rows []sparseVector, sq []float64, dim, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centroids := make([][]float64, 0, k)
	first := rng.IntN(n)
	centroids = append(centroids, densify(rows[first], dim))

	dist := make([]float64, n)
	for i := range rows {
		dist[i] = sqDist(rows[i], sq[i], centroids[0], sqNorm(centroids[0]))
	}

	for len(centroids) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}
		next := 0
		if total <= 0 {
			// Every point already coincides with a centroid.
			next = rng.IntN(n)
		} else {
			target := rng.Float64() * total
			acc := 0.0
			next = n - 1
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}
		c := densify(rows[next], dim)
		cn := sqNorm(c)
		centroids = append(centroids, c)
		for i := range rows {
			if d := sqDist(rows[i], sq[i], c, cn); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centroids
}

// lloyd iterates assignment and update steps until labels stop changing.
// An empty cluster is re-seeded with the point farthest from its centroid
// among the points whose cluster keeps at least one other member.
func lloyd(rows []sparseVector, sq []float64, centroids [][]float64, maxIter int) kmeansResult {
	n, k := len(rows), len(centroids)
	dim := len(centroids[0])
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	dists := make([]float64, n)
	norms := make([]float64, k)

	iter := 0
	for ; iter < maxIter; iter++ {
		for c := range centroids {
			norms[c] = sqNorm(centroids[c])
		}
		changed := false
		for i := range rows {
			bestC, bestD := 0, math.Inf(1)
			for c := range centroids {
				if d := sqDist(rows[i], sq[i], centroids[c], norms[c]); d < bestD {
					bestC, bestD = c, d
				}
			}
			if labels[i] != bestC {
				labels[i] = bestC
				changed = true
			}
			dists[i] = bestD
		}
		if !changed {
			break
		}

		sizes := make([]int, k)
		for _, l := range labels {
			sizes[l]++
		}
		for c := 0; c < k; c++ {
			if sizes[c] > 0 {
				continue
			}
			far := farthest(dists, labels, sizes)
			sizes[labels[far]]--
			labels[far] = c
			dists[far] = -1
			sizes[c] = 1
		}

		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, r := range rows {
			for p, j := range r.idx {
				next[labels[i]][j] += r.val[p]
			}
		}
		for c := range next {
			if sizes[c] > 0 {
				inv := 1 / float64(sizes[c])
				for j := range next[c] {
					next[c][j] *= inv
				}
			}
		}
		centroids = next
	}

	inertia := 0.0
	for c := range centroids {
		norms[c] = sqNorm(centroids[c])
	}
	for i := range rows {
		inertia += sqDist(rows[i], sq[i], centroids[labels[i]], norms[labels[i]])
	}
	return kmeansResult{labels: labels, inertia: inertia, iters: iter}
}

// farthest returns the point with the largest distance whose cluster has
// more than one member. With k <= n such a point exists whenever a cluster is
// empty.
func farthest(dists []float64, labels, sizes []int) int {
	idx, best := 0, -1.0
	for i, d := range dists {
		if sizes[labels[i]] > 1 && d > best {
			idx, best = i, d
		}
	}
	return idx
}

func densify(v sparseVector, dim int) []float64 {
	d := make([]float64, dim)
	for p, j := range v.idx {
		d[j] = v.val[p]
	}
	return d
}

func sqNorm(d []float64) float64 {
	s := 0.0
	for _, x := range d {
		s += x * x
	}
	return s
}

// sqDist is ||x-c||² expanded as ||x||² + ||c||² - 2x·c, floored at zero.
func sqDist(x sparseVector, xNorm float64, c []float64, cNorm float64) float64 {
	d := xNorm + cNorm - 2*x.dot(c)
	if d < 0 {
		return 0
	}
	return d
}
