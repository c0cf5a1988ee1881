package ppo

import "math/rand"

// partition shuffles [0, n) without replacement and splits the permutation
// into chunks of at most size instances. Every index appears in exactly one
// chunk, so one pass over the partition is one inner epoch. Callers resolve
// and clamp size beforehand.
func partition(rng *rand.Rand, n, size int) [][]int {
	perm := rng.Perm(n)
	chunks := make([][]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, perm[start:end])
	}
	return chunks
}
