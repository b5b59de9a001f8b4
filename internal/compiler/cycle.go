package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// Cycle is a set of components whose "after" declarations depend on each
// other, so no solution order exists.
type Cycle struct {
	Path    []string `json:"path"` // ["A", "B", "A"]
	Message string   `json:"message"`
}

// AnalyzeCycles reports every cycle in the "after" graph of defs. It uses
// Tarjan's algorithm; a strongly connected component with more than one
// member, or a member that depends on itself, is a cycle. Unknown
// dependencies are ignored here and reported by Validate.
func AnalyzeCycles(defs []Definition) []Cycle {
	graph := buildDependencyGraph(defs)

	var cycles []Cycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// Order sorts defs so every component comes after the ones it names in
// "after". Ties keep declaration order.
func Order(defs []Definition) ([]Definition, error) {
	if cycles := AnalyzeCycles(defs); len(cycles) > 0 {
		return nil, fmt.Errorf("cannot order components: %s", cycles[0].Message)
	}

	index := make(map[string]int, len(defs))
	for i, d := range defs {
		index[d.Name] = i
	}

	var (
		out  = make([]Definition, 0, len(defs))
		done = make(map[string]bool, len(defs))
	)
	var visit func(d Definition)
	visit = func(d Definition) {
		if done[d.Name] {
			return
		}
		done[d.Name] = true
		for _, dep := range d.After {
			if i, ok := index[dep]; ok {
				visit(defs[i])
			}
		}
		out = append(out, d)
	}
	for _, d := range defs {
		visit(d)
	}
	return out, nil
}

// dependencyGraph maps a component to the components it must follow.
type dependencyGraph map[string][]string

func buildDependencyGraph(defs []Definition) dependencyGraph {
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	graph := make(dependencyGraph, len(defs))
	for _, d := range defs {
		edges := []string{}
		for _, dep := range d.After {
			if known[dep] {
				edges = append(edges, dep)
			}
		}
		graph[d.Name] = append(graph[d.Name], edges...)
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC returns the strongly connected components of graph. Nodes are
// visited in sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToCycle(scc []string, graph dependencyGraph) Cycle {
	if len(scc) == 1 {
		name := scc[0]
		return Cycle{
			Path:    []string{name, name},
			Message: fmt.Sprintf("component %s comes after itself", name),
		}
	}
	path := reconstructCyclePath(scc, graph)
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath follows edges inside the SCC from its first member
// until it returns there.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
