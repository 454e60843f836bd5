// Package dag provides a directed graph over lineage artifacts. Edges run
// from a source artifact to the artifact derived from it. The graph supports
// cycle detection with path reconstruction and transitive walks in both
// directions.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

// ErrSelfLoop is returned by AddEdge when both endpoints are the same node.
var ErrSelfLoop = errors.New("self-loop")

// Graph is a directed graph keyed by node ID, for example "derivedrow:12".
type Graph struct {
	nodes   map[string]bool
	edges   map[string][]string // source -> derived
	parents map[string][]string // derived -> sources
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]bool),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	return g.nodes[id]
}

// AddEdge records that derivedID was computed from sourceID. Both nodes must
// exist. Repeated edges are collapsed.
func (g *Graph) AddEdge(sourceID, derivedID string) error {
	if !g.nodes[sourceID] {
		return fmt.Errorf("source node %q does not exist", sourceID)
	}
	if !g.nodes[derivedID] {
		return fmt.Errorf("derived node %q does not exist", derivedID)
	}
	if sourceID == derivedID {
		return fmt.Errorf("%w: %s", ErrSelfLoop, sourceID)
	}

	if !contains(g.edges[sourceID], derivedID) {
		g.edges[sourceID] = append(g.edges[sourceID], derivedID)
	}
	if !contains(g.parents[derivedID], sourceID) {
		g.parents[derivedID] = append(g.parents[derivedID], sourceID)
	}
	return nil
}

// GetParents returns the direct sources of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the artifacts directly derived from a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle reports whether the graph contains a cycle and returns one cycle
// path, starting and ending at the same node. Traversal order is sorted so
// the reported path is deterministic.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool, len(g.nodes))
	onStack := make(map[string]bool)
	via := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, child := range g.edges[id] {
			if !visited[child] {
				via[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cyclePath = []string{child}
				for curr := id; curr != child; curr = via[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{child}, cyclePath...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// GetUpstreamNodes returns every node the given node was transitively
// derived from, sorted.
func (g *Graph) GetUpstreamNodes(id string) []string {
	return g.walk(id, g.parents)
}

// GetDownstreamNodes returns every node transitively derived from the given
// node, sorted.
func (g *Graph) GetDownstreamNodes(id string) []string {
	return g.walk(id, g.edges)
}

func (g *Graph) walk(id string, next map[string][]string) []string {
	seen := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range next[curr] {
			if !seen[n] && n != id {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}

	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
