// Package adjacency implements the in-RAM bidirectional neighbor cache
// spreading activation walks. It is never the source of truth: a rebuild
// from the store's edges must always reproduce it exactly.
package adjacency

import "sync"

// Neighbor is one edge endpoint as seen from a given node.
type Neighbor struct {
	NodeID int64
	Weight float32
	Type   string
}

// Cache is a thread-safe nodeID -> neighbors map.
type Cache struct {
	mu    sync.RWMutex
	edges map[int64][]Neighbor
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{edges: make(map[int64][]Neighbor)}
}

// Edge is one directed relation used to build or update the cache.
type Edge struct {
	SourceID int64
	TargetID int64
	Weight   float32
	Type     string
}

// Build replaces the cache's contents from a full edge list.
func (c *Cache) Build(edges []Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges = make(map[int64][]Neighbor)
	for _, e := range edges {
		c.edges[e.SourceID] = append(c.edges[e.SourceID], Neighbor{NodeID: e.TargetID, Weight: e.Weight, Type: e.Type})
	}
}

// AddEdge incrementally adds a directed edge without rebuilding.
func (c *Cache) AddEdge(e Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges[e.SourceID] = append(c.edges[e.SourceID], Neighbor{NodeID: e.TargetID, Weight: e.Weight, Type: e.Type})
}

// RemoveNode drops nodeID both as a source and from every neighbor list
// that references it, used by delete propagation.
func (c *Cache) RemoveNode(nodeID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.edges, nodeID)
	for src, neighbors := range c.edges {
		filtered := neighbors[:0]
		for _, n := range neighbors {
			if n.NodeID != nodeID {
				filtered = append(filtered, n)
			}
		}
		c.edges[src] = filtered
	}
}

// Neighbors returns nodeID's outgoing neighbors.
func (c *Cache) Neighbors(nodeID int64) []Neighbor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Neighbor, len(c.edges[nodeID]))
	copy(out, c.edges[nodeID])
	return out
}

// Nodes returns every node id that has at least one outgoing edge.
func (c *Cache) Nodes() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, 0, len(c.edges))
	for id := range c.edges {
		out = append(out, id)
	}
	return out
}
