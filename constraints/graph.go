package constraints

import (
	"sort"
	"strings"
)

// Graph is a directed graph over add-on ids stored as adjacency sets.
// Iteration is always in id order so results are deterministic.
type Graph struct {
	edges map[string]map[string]struct{}
}

func NewGraph() *Graph {
	return &Graph{edges: map[string]map[string]struct{}{}}
}

func (g *Graph) AddNode(id string) {
	if _, ok := g.edges[id]; !ok {
		g.edges[id] = map[string]struct{}{}
	}
}

func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.edges[from][to] = struct{}{}
}

func (g *Graph) RemoveEdgesFrom(from string) {
	if _, ok := g.edges[from]; ok {
		g.edges[from] = map[string]struct{}{}
	}
}

func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.edges[from][to]
	return ok
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.edges[id]
	return ok
}

func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.edges))
	for id := range g.edges {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}

func (g *Graph) Neighbors(id string) []string {
	neighbors := make([]string, 0, len(g.edges[id]))
	for to := range g.edges[id] {
		neighbors = append(neighbors, to)
	}
	sort.Strings(neighbors)
	return neighbors
}

// FindCycle returns the first cycle found by a depth-first search as a closed path
// (first and last element are equal), or nil when the graph is acyclic.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(g.edges))
	var stack []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		state[node] = inProgress
		stack = append(stack, node)

		for _, next := range g.Neighbors(node) {
			switch state[next] {
			case inProgress:
				start := indexOf(stack, next)
				cycle = append(append([]string{}, stack[start:]...), next)
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = done
		return false
	}

	for _, node := range g.Nodes() {
		if state[node] == unvisited && visit(node) {
			return cycle
		}
	}

	return nil
}

// Reachable returns every node reachable from id through one or more edges.
// id itself is included only when it sits on a cycle.
func (g *Graph) Reachable(id string) map[string]struct{} {
	reached := map[string]struct{}{}
	queue := g.Neighbors(id)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if _, ok := reached[node]; ok {
			continue
		}
		reached[node] = struct{}{}
		queue = append(queue, g.Neighbors(node)...)
	}

	return reached
}

// TransitiveClosure maps every node to the set of nodes it can reach.
func (g *Graph) TransitiveClosure() map[string]map[string]struct{} {
	closure := make(map[string]map[string]struct{}, len(g.edges))
	for _, node := range g.Nodes() {
		closure[node] = g.Reachable(node)
	}
	return closure
}

func FormatPath(path []string) string {
	return strings.Join(path, " -> ")
}

func indexOf(values []string, value string) int {
	for i, v := range values {
		if v == value {
			return i
		}
	}
	return -1
}
