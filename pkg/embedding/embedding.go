// Package embedding provides the dense text encoder used to seed ANN
// search. The shipped implementation is a deterministic character n-gram
// hashing encoder; it requires no model server, matching the "deterministic
// for a given model id" contract without any network dependency. Swap in
// a transformer-backed client by implementing Embedder.
package embedding

import (
	"hash/fnv"
	"math"
	"strings"
)

// Embedder is a fixed-dimension dense text encoder, a single process-wide
// instance shared by ingestion and retrieval.
type Embedder interface {
	Encode(text string) ([]float32, error)
	Dimension() int
	ModelID() string
}

// HashEmbedder is a reference Embedder: it hashes character n-grams into
// a fixed-width vector, then L2-normalizes. Deterministic for the same
// (modelID, dimension) pair, which is all the contract requires.
type HashEmbedder struct {
	dimension int
	modelID   string
	ngram     int
}

// NewHashEmbedder builds a HashEmbedder with the given dimension and model
// id (recorded only for cache-invalidation bookkeeping downstream).
func NewHashEmbedder(dimension int, modelID string) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	if modelID == "" {
		modelID = "hippomem-hash-v1"
	}
	return &HashEmbedder{dimension: dimension, modelID: modelID, ngram: 3}
}

func (e *HashEmbedder) Dimension() int   { return e.dimension }
func (e *HashEmbedder) ModelID() string  { return e.modelID }

// Encode produces a deterministic fixed-length embedding for text.
func (e *HashEmbedder) Encode(text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec, nil
	}

	tokens := tokenize(normalized)
	for _, tok := range tokens {
		for n := 1; n <= e.ngram; n++ {
			for i := 0; i+n <= len(tok); i++ {
				gram := tok[i : i+n]
				h := fnv.New64a()
				h.Write([]byte(gram))
				idx := h.Sum64() % uint64(e.dimension)
				sign := float32(1)
				if (h.Sum64()/uint64(e.dimension))%2 == 1 {
					sign = -1
				}
				vec[idx] += sign
			}
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func tokenize(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if isWordRune(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 'а' && r <= 'я':
		return true
	case r == 'ё':
		return true
	case r == '_':
		return true
	}
	return false
}
