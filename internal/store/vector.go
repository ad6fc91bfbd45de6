package store

import (
	"encoding/binary"
	"math"
	"sort"
)

// packVector serializes a vector as little-endian float32 words and
// returns the blob together with its Euclidean norm, so search never
// recomputes norms on the hot path.
func packVector(v []float32) ([]byte, float64) {
	blob := make([]byte, 4*len(v))
	var sum float64
	for i, x := range v {
		binary.LittleEndian.PutUint32(blob[4*i:], math.Float32bits(x))
		sum += float64(x) * float64(x)
	}
	return blob, math.Sqrt(sum)
}

func unpackVector(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// candidate is a stored chunk considered for ranking.
type candidate struct {
	result SearchResult
	vec    []float32
	norm   float64
}

// rankCandidates scores candidates against the query by cosine
// similarity and returns up to limit results, best first. Candidates
// whose dimension differs from the query's are skipped; ties keep the
// original row order. An empty or zero-norm query yields no results.
func rankCandidates(query []float32, limit int, cands []candidate) []SearchResult {
	if limit <= 0 {
		return []SearchResult{}
	}
	qnorm := norm(query)
	if len(query) == 0 || qnorm == 0 {
		return []SearchResult{}
	}

	scored := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if len(c.vec) != len(query) || c.norm == 0 {
			continue
		}
		c.result.Score = dot(query, c.vec) / (qnorm * c.norm)
		c.result.Distance = 1 - c.result.Score
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].result.Score > scored[j].result.Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	results := make([]SearchResult, len(scored))
	for i, c := range scored {
		results[i] = c.result
	}
	return results
}
