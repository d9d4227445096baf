package state

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownComputed marks lookups of names no definition covers.
	ErrUnknownComputed = errors.New("state: unknown computed value")
	// ErrComputedCycle marks definition sets whose declared dependencies
	// form a cycle.
	ErrComputedCycle = errors.New("state: computed dependency cycle")
)

// dependencyGraph maps a depended-upon key (state field or computed name) to
// the computed names that must go stale when that key changes. Built once at
// cache construction, immutable afterward.
type dependencyGraph struct {
	dependents map[string][]string
	// all lists definitions with no declared dependencies; they go stale on
	// every committed change.
	all []string
}

func buildGraph(defs []Definition) (dependencyGraph, error) {
	graph := dependencyGraph{dependents: make(map[string][]string, len(defs))}
	names := make(map[string]Definition, len(defs))

	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return dependencyGraph{}, errors.New("state: computed definition needs a name")
		}
		if def.Fn == nil && def.Expr == "" {
			return dependencyGraph{}, fmt.Errorf("state: computed %q needs a function or expression", name)
		}
		if _, exists := names[name]; exists {
			return dependencyGraph{}, fmt.Errorf("state: computed %q defined twice", name)
		}
		names[name] = def
	}

	for _, def := range defs {
		if len(def.Deps) == 0 {
			graph.all = append(graph.all, def.Name)
			continue
		}
		for _, dep := range def.Deps {
			graph.dependents[dep] = append(graph.dependents[dep], def.Name)
		}
	}

	if err := detectCycles(defs, names); err != nil {
		return dependencyGraph{}, err
	}
	return graph, nil
}

// detectCycles walks declared dependencies between computed names. Edges to
// plain state keys terminate the walk.
func detectCycles(defs []Definition, names map[string]Definition) error {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(defs))

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visiting:
			return fmt.Errorf("%w: through %q", ErrComputedCycle, name)
		case done:
			return nil
		}
		marks[name] = visiting
		for _, dep := range names[name].Deps {
			if _, isComputed := names[dep]; !isComputed {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[name] = done
		return nil
	}

	for _, def := range defs {
		if err := visit(def.Name); err != nil {
			return err
		}
	}
	return nil
}

// staleSet computes the fixed point of names invalidated by the changed keys:
// direct dependents, their dependents, and every full-state definition.
func (g dependencyGraph) staleSet(changed []string) map[string]struct{} {
	stale := make(map[string]struct{})
	queue := make([]string, 0, len(changed)+len(g.all))

	for _, name := range g.all {
		if _, seen := stale[name]; !seen {
			stale[name] = struct{}{}
			queue = append(queue, name)
		}
	}
	queue = append(queue, changed...)

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		for _, name := range g.dependents[key] {
			if _, seen := stale[name]; seen {
				continue
			}
			stale[name] = struct{}{}
			queue = append(queue, name)
		}
	}
	return stale
}
