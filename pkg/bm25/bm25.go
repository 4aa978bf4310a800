// Package bm25 implements an Okapi BM25 inverted index for lexical
// keyword scoring, one of the four signals blended by the retrieval
// pipeline.
package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// K1 controls term-frequency saturation; B controls length normalization.
// Both match the standard Okapi defaults.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

var tokenPattern = regexp.MustCompile(`[a-zA-Zа-яА-ЯёЁ0-9_]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Index is a thread-safe Okapi BM25 inverted index.
type Index struct {
	mu        sync.RWMutex
	k1, b     float64
	docFreqs  map[string]int
	docLens   map[int64]int
	docTerms  map[int64]map[string]int
	nodeIDs   []int64
	nDocs     int
	avgDocLen float64
	built     bool
}

// New creates an Index with the given BM25 parameters (pass 0 to use the
// standard defaults).
func New(k1, b float64) *Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b <= 0 {
		b = DefaultB
	}
	return &Index{
		k1: k1, b: b,
		docFreqs: make(map[string]int),
		docLens:  make(map[int64]int),
		docTerms: make(map[int64]map[string]int),
	}
}

// Document is one (id, content) pair used to bulk-build the index.
type Document struct {
	ID      int64
	Content string
}

// Build replaces the index's contents from the given document set,
// called once at startup.
func (idx *Index) Build(docs []Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.docFreqs = make(map[string]int)
	idx.docLens = make(map[int64]int)
	idx.docTerms = make(map[int64]map[string]int)
	idx.nodeIDs = idx.nodeIDs[:0]

	totalLen := 0
	for _, d := range docs {
		tf := termFreqs(tokenize(d.Content))
		idx.docTerms[d.ID] = tf
		idx.docLens[d.ID] = sumValues(tf)
		idx.nodeIDs = append(idx.nodeIDs, d.ID)
		totalLen += idx.docLens[d.ID]
		for term := range tf {
			idx.docFreqs[term]++
		}
	}
	idx.nDocs = len(docs)
	if idx.nDocs > 0 {
		idx.avgDocLen = float64(totalLen) / float64(idx.nDocs)
	}
	idx.built = true
}

// AddDocument incrementally indexes a single new document.
func (idx *Index) AddDocument(id int64, content string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tf := termFreqs(tokenize(content))
	if _, existed := idx.docTerms[id]; !existed {
		idx.nodeIDs = append(idx.nodeIDs, id)
	}
	idx.docTerms[id] = tf
	idx.docLens[id] = sumValues(tf)

	totalLen := 0
	for _, l := range idx.docLens {
		totalLen += l
	}
	idx.nDocs = len(idx.docTerms)
	if idx.nDocs > 0 {
		idx.avgDocLen = float64(totalLen) / float64(idx.nDocs)
	}
	for term := range tf {
		idx.docFreqs[term]++
	}
	idx.built = true
}

// Search scores every document against query and returns up to topK
// node_id->score pairs with strictly positive score, sorted by the
// caller as needed (the returned map has no inherent order).
func (idx *Index) Search(query string, topK int) map[int64]float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.built {
		return map[int64]float64{}
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return map[int64]float64{}
	}

	scores := make(map[int64]float64)
	for _, id := range idx.nodeIDs {
		tf := idx.docTerms[id]
		dl := idx.docLens[id]
		var score float64
		for _, term := range queryTokens {
			freq, ok := tf[term]
			if !ok {
				continue
			}
			df := idx.docFreqs[term]
			idf := math.Log((float64(idx.nDocs)-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
			tfNorm := (float64(freq) * (idx.k1 + 1)) /
				(float64(freq) + idx.k1*(1-idx.b+idx.b*float64(dl)/maxFloat(idx.avgDocLen, 1)))
			score += idf * tfNorm
		}
		if score > 0 {
			scores[id] = score
		}
	}

	if topK > 0 && len(scores) > topK {
		type kv struct {
			id    int64
			score float64
		}
		sorted := make([]kv, 0, len(scores))
		for id, s := range scores {
			sorted = append(sorted, kv{id, s})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })
		sorted = sorted[:topK]
		scores = make(map[int64]float64, topK)
		for _, e := range sorted {
			scores[e.id] = e.score
		}
	}
	return scores
}

// IsBuilt reports whether Build has been called at least once.
func (idx *Index) IsBuilt() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.built
}

// VocabSize reports the number of unique terms seen.
func (idx *Index) VocabSize() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docFreqs)
}

func termFreqs(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func sumValues(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
