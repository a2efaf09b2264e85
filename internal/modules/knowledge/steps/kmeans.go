package steps

import "github.com/google/uuid"

const defaultKMeansIterations = 25

type Point struct {
	ID     uuid.UUID
	Vector []float32
}

// ChooseK is clamp(floor(n/3), 2, 5).
func ChooseK(n int) int {
	k := n / 3
	if k < 2 {
		return 2
	}
	if k > 5 {
		return 5
	}
	return k
}

// KMeans partitions points into exactly k buckets by cosine similarity to the
// bucket centroids. Buckets may be empty; every point lands in exactly one.
// Seeding is deterministic farthest-point starting from the first point.
func KMeans(points []Point, k int, maxIters int) [][]uuid.UUID {
	if k < 1 {
		k = 1
	}
	buckets := make([][]uuid.UUID, k)
	for i := range buckets {
		buckets[i] = []uuid.UUID{}
	}
	if len(points) == 0 {
		return buckets
	}
	vecs := make([][]float32, len(points))
	for i := range points {
		vecs[i] = points[i].Vector
	}
	for i, c := range kmeansCosine(vecs, k, maxIters) {
		buckets[c] = append(buckets[c], points[i].ID)
	}
	return buckets
}

// kmeansCosine returns a cluster index in [0, k) per input vector.
func kmeansCosine(embs [][]float32, k int, iters int) []int {
	n := len(embs)
	assign := make([]int, n)
	if n == 0 || k <= 1 {
		return assign
	}
	if iters <= 0 {
		iters = defaultKMeansIterations
	}
	seeds := k
	if seeds > n {
		seeds = n
	}
	dim := len(embs[0])

	centers := make([][]float32, k)
	chosen := make([]bool, n)
	centers[0] = embs[0]
	chosen[0] = true
	for c := 1; c < seeds; c++ {
		bestIdx := -1
		bestDist := -1.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			maxSim := -1.0
			for j := 0; j < c; j++ {
				if sim := CosineSimilarity(embs[i], centers[j]); sim > maxSim {
					maxSim = sim
				}
			}
			if dist := 1.0 - maxSim; dist > bestDist {
				bestDist = dist
				bestIdx = i
			}
		}
		centers[c] = embs[bestIdx]
		chosen[bestIdx] = true
	}

	for i := range assign {
		assign[i] = -1
	}
	for iter := 0; iter < iters; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best := 0
			bestSim := -2.0
			for c := 0; c < seeds; c++ {
				if sim := CosineSimilarity(embs[i], centers[c]); sim > bestSim {
					bestSim = sim
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		// empty clusters keep their previous centroid
		count := make([]int, seeds)
		sums := make([][]float64, seeds)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i := 0; i < n; i++ {
			if len(embs[i]) != dim {
				continue
			}
			c := assign[i]
			count[c]++
			for j, v := range embs[i] {
				sums[c][j] += float64(v)
			}
		}
		for c := 0; c < seeds; c++ {
			if count[c] == 0 {
				continue
			}
			mean := make([]float32, dim)
			for j := range mean {
				mean[j] = float32(sums[c][j] / float64(count[c]))
			}
			centers[c] = mean
		}
	}
	return assign
}
