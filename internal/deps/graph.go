// Package deps tracks directed dependency edges between assets. Edges are
// derived from compile declarations and replaced wholesale whenever the
// owning asset compiles successfully.
package deps

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind is the kind of a dependency edge
type Kind int

const (
	// DependsOn: the source's compile consumed the target as a build input
	DependsOn Kind = iota
	// ParentOf: the source's compile produced the target as a child resource
	ParentOf
	// References: the source's compiled output refers to the target
	References
)

func (k Kind) String() string {
	switch k {
	case DependsOn:
		return "depends_on"
	case ParentOf:
		return "parent_of"
	case References:
		return "references"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "depends_on", "dependencies", "depends-on":
		return DependsOn, nil
	case "parent_of", "parent-of", "children":
		return ParentOf, nil
	case "references", "refs":
		return References, nil
	default:
		return 0, fmt.Errorf("unknown dependency kind %q", s)
	}
}

// Edge is a directed relation between two asset keys
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind Kind   `json:"kind"`
}

type direction int

const (
	outgoing direction = iota
	incoming
)

type node struct {
	out map[Kind][]string
	in  map[Kind][]string
}

func newNode() *node {
	return &node{
		out: make(map[Kind][]string),
		in:  make(map[Kind][]string),
	}
}

func (n *node) empty() bool {
	for _, v := range n.out {
		if len(v) > 0 {
			return false
		}
	}
	for _, v := range n.in {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Graph tracks dependency edges keyed by asset key (lower-cased relative path)
type Graph struct {
	nodes map[string]*node
	mu    sync.RWMutex
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// ReplaceOutgoing atomically swaps every outgoing edge of from for edges.
// Edges whose From differs from the argument are rejected.
func (g *Graph) ReplaceOutgoing(from string, edges []Edge) error {
	for _, e := range edges {
		if e.From != from {
			return fmt.Errorf("edge %s -> %s does not originate at %s", e.From, e.To, from)
		}
		if e.To == "" {
			return fmt.Errorf("edge from %s has empty target", from)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.clearOutgoing(from)
	for _, e := range edges {
		g.addEdge(e)
	}
	g.prune(from)
	return nil
}

// AddEdge adds a single edge
func (g *Graph) AddEdge(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addEdge(e)
}

// RemoveNode removes a key and every edge touching it
func (g *Graph) RemoveNode(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[key]
	if !ok {
		return
	}
	g.clearOutgoing(key)
	for kind, sources := range n.in {
		for _, src := range sources {
			if srcNode, ok := g.nodes[src]; ok {
				srcNode.out[kind] = removeString(srcNode.out[kind], key)
				g.prune(src)
			}
		}
	}
	delete(g.nodes, key)
}

// Outgoing returns all outgoing edges of a key
func (g *Graph) Outgoing(from string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[from]
	if !ok {
		return nil
	}
	var edges []Edge
	for _, kind := range []Kind{DependsOn, ParentOf, References} {
		for _, to := range n.out[kind] {
			edges = append(edges, Edge{From: from, To: to, Kind: kind})
		}
	}
	return edges
}

// Dependencies returns what key depends on
func (g *Graph) Dependencies(key string, deep bool) []string {
	return g.walk(key, []Kind{DependsOn}, outgoing, deep)
}

// Dependents returns what depends on key
func (g *Graph) Dependents(key string, deep bool) []string {
	return g.walk(key, []Kind{DependsOn}, incoming, deep)
}

// Parents returns the assets whose compiles produced key
func (g *Graph) Parents(key string, deep bool) []string {
	return g.walk(key, []Kind{ParentOf}, incoming, deep)
}

// Children returns the child resources produced by key's compile
func (g *Graph) Children(key string, deep bool) []string {
	return g.walk(key, []Kind{ParentOf}, outgoing, deep)
}

// References returns what key refers to
func (g *Graph) References(key string, deep bool) []string {
	return g.walk(key, []Kind{References}, outgoing, deep)
}

// Referencers returns what refers to key
func (g *Graph) Referencers(key string, deep bool) []string {
	return g.walk(key, []Kind{References}, incoming, deep)
}

// Upstream returns everything key's compiled output is derived from, over
// DependsOn and References edges with a single visited set
func (g *Graph) Upstream(key string) []string {
	return g.walk(key, []Kind{DependsOn, References}, outgoing, true)
}

// Downstream returns everything derived from key, the inverse of Upstream
func (g *Graph) Downstream(key string) []string {
	return g.walk(key, []Kind{DependsOn, References}, incoming, true)
}

// Size returns the number of keys with at least one edge
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Clear removes every edge
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*node)
}

// TopologicalOrder orders keys so that upstream assets come first, following
// DependsOn and References edges between the given keys only
func (g *Graph) TopologicalOrder(keys []string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys = dedupe(keys)
	inSet := seenKeys(keys)

	// Kahn's algorithm over the induced subgraph
	inDegree := make(map[string]int, len(keys))
	for _, k := range keys {
		inDegree[k] = 0
	}
	for _, k := range keys {
		n, ok := g.nodes[k]
		if !ok {
			continue
		}
		for _, kind := range []Kind{DependsOn, References} {
			for _, to := range n.out[kind] {
				if inSet[to] && to != k {
					inDegree[k]++
				}
			}
		}
	}

	queue := make([]string, 0)
	for _, k := range keys {
		if inDegree[k] == 0 {
			queue = append(queue, k)
		}
	}

	result := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		result = append(result, current)

		n, ok := g.nodes[current]
		if !ok {
			continue
		}
		for _, kind := range []Kind{DependsOn, References} {
			for _, dependent := range n.in[kind] {
				if !inSet[dependent] || dependent == current {
					continue
				}
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					queue = append(queue, dependent)
				}
			}
		}
	}

	if len(result) != len(keys) {
		return nil, &CycleError{
			Message: "circular dependency detected between assets",
		}
	}

	return result, nil
}

// walk collects neighbours of start over the given kinds. Deep walks use a
// visited set keyed by asset key, so cycles terminate; start itself is never
// part of the result.
func (g *Graph) walk(start string, kinds []Kind, dir direction, deep bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[string]bool{start: true}
	result := make([]string, 0)
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, ok := g.nodes[current]
		if !ok {
			continue
		}
		for _, kind := range kinds {
			neighbours := n.out[kind]
			if dir == incoming {
				neighbours = n.in[kind]
			}
			for _, next := range neighbours {
				if visited[next] {
					continue
				}
				visited[next] = true
				result = append(result, next)
				if deep {
					stack = append(stack, next)
				}
			}
		}
	}

	sort.Strings(result)
	return result
}

func (g *Graph) addEdge(e Edge) {
	from, ok := g.nodes[e.From]
	if !ok {
		from = newNode()
		g.nodes[e.From] = from
	}
	to, ok := g.nodes[e.To]
	if !ok {
		to = newNode()
		g.nodes[e.To] = to
	}

	if !contains(from.out[e.Kind], e.To) {
		from.out[e.Kind] = append(from.out[e.Kind], e.To)
	}
	if !contains(to.in[e.Kind], e.From) {
		to.in[e.Kind] = append(to.in[e.Kind], e.From)
	}
}

func (g *Graph) clearOutgoing(from string) {
	n, ok := g.nodes[from]
	if !ok {
		return
	}
	for kind, targets := range n.out {
		for _, to := range targets {
			if toNode, ok := g.nodes[to]; ok {
				toNode.in[kind] = removeString(toNode.in[kind], from)
				if to != from {
					g.prune(to)
				}
			}
		}
		delete(n.out, kind)
	}
}

// prune drops a node that no longer has edges
func (g *Graph) prune(key string) {
	if n, ok := g.nodes[key]; ok && n.empty() {
		delete(g.nodes, key)
	}
}

// CycleError represents a circular dependency error
type CycleError struct {
	Message string
}

func (e *CycleError) Error() string {
	return e.Message
}

func seenKeys(keys []string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// dedupe drops repeated keys, keeping the first occurrence
func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func removeString(slice []string, item string) []string {
	result := make([]string, 0, len(slice))
	for _, s := range slice {
		if s != item {
			result = append(result, s)
		}
	}
	return result
}
