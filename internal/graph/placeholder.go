package graph

import "fmt"

// ReplacePlaceholders rewires every node input referring to a placeholder
// in the mapping to point at its replacement, and returns the set of
// placeholders actually replaced. A placeholder absent from the graph is
// a no-op, not an error.
//
// Block internals are left untouched: placeholders inside a block are
// bound through the block's argument mapping, not by substitution.
func ReplacePlaceholders(root Node, replacements map[*Variable]*Variable) (map[*Variable]*Variable, error) {
	for ph, repl := range replacements {
		if ph.Kind() != Placeholder {
			return nil, fmt.Errorf("replace placeholders: %s is %s, not Placeholder", ph, ph.Kind())
		}
		if repl.Kind() == Placeholder {
			return nil, fmt.Errorf("replace placeholders: replacement for %s is itself a placeholder", ph)
		}
		if !ph.Shape().Equal(repl.Shape()) {
			return nil, fmt.Errorf("replace placeholders: shape mismatch %v vs %v", ph.Shape(), repl.Shape())
		}
		if ph.DType() != repl.DType() {
			return nil, fmt.Errorf("replace placeholders: dtype mismatch %s vs %s", ph.DType(), repl.DType())
		}
	}

	replaced := make(map[*Variable]*Variable)
	visited := make(map[Node]struct{})
	substituteInputs(root, visited, replacements, replaced)
	return replaced, nil
}

// substituteInputs walks owner edges rewiring matched inputs. It must run
// bottom-up relative to rewiring: a rewired input may reach a new owner
// subgraph, which the caller merges separately.
func substituteInputs(n Node, visited map[Node]struct{}, replacements, replaced map[*Variable]*Variable) {
	if _, seen := visited[n]; seen {
		return
	}
	visited[n] = struct{}{}

	for i, in := range n.Inputs() {
		if repl, ok := replacements[in]; ok {
			n.setInput(i, repl)
			replaced[in] = repl
			in = repl
		}
		if in.IsOutput() {
			substituteInputs(in.Owner(), visited, replacements, replaced)
		}
	}
}

// FindPlaceholders returns every unresolved placeholder still reachable
// from root, deduplicated, in first-encountered order.
func FindPlaceholders(root Node) []*Variable {
	var placeholders []*Variable
	for _, in := range DetermineInputs(root, DeclaredOrder) {
		if in.Kind() == Placeholder {
			placeholders = append(placeholders, in)
		}
	}
	return placeholders
}
