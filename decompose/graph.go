package decompose

import (
	"fmt"
	"sort"

	"github.com/hupe1980/toolmesh/core"
)

const (
	unvisited = iota
	visiting
	visited
)

// BuildExecutionOrder topologically orders sub-questions so every
// dependency precedes its dependents. Sub-questions are visited in ascending
// priority (then input order) and dependencies are visited depth-first.
//
// A dependency on an unknown id fails with core.ErrUnknownDependency; a cycle
// fails with core.ErrCircularDependency naming the id that closed it. Cycles
// are never broken silently.
func BuildExecutionOrder(subs []core.SubQuestion) ([]string, error) {
	byID := make(map[string]core.SubQuestion, len(subs))
	for _, sq := range subs {
		if _, dup := byID[sq.ID]; dup {
			return nil, &core.Error{Kind: core.KindInvalidInput, Op: "decompose.graph", ID: sq.ID, Err: fmt.Errorf("duplicate sub-question id")}
		}
		byID[sq.ID] = sq
	}
	for _, sq := range subs {
		for _, dep := range sq.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, &core.Error{Kind: core.KindUnknownDependency, Op: "decompose.graph", ID: sq.ID, Err: fmt.Errorf("depends on %q", dep)}
			}
		}
	}

	sorted := append([]core.SubQuestion(nil), subs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	state := make(map[string]int, len(subs))
	order := make([]string, 0, len(subs))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return &core.Error{
				Kind: core.KindCircularDependency,
				Op:   "decompose.graph",
				ID:   id,
				Err:  fmt.Errorf("cycle %v", append(path, id)),
			}
		}
		state[id] = visiting
		for _, dep := range byID[id].Dependencies {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = visited
		order = append(order, id)
		return nil
	}

	for _, sq := range sorted {
		if err := visit(sq.ID, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
