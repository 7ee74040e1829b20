package graph

// OperandOrder selects which of the two valid total orderings a
// multi-input node exposes its inputs in during traversal. Callers pick
// the one that matches their consumption pattern, e.g. argument-order
// sensitive gradient attribution.
type OperandOrder int

// Operand orderings.
const (
	DeclaredOrder OperandOrder = iota
	ReversedOrder
)

// operands returns a node's inputs in the requested order.
func operands(n Node, order OperandOrder) []*Variable {
	inputs := n.Inputs()
	if order == DeclaredOrder {
		return inputs
	}
	reversed := make([]*Variable, len(inputs))
	for i, in := range inputs {
		reversed[len(inputs)-1-i] = in
	}
	return reversed
}

// PreorderTraverseVariables visits every variable reachable from root:
// a node's outputs first, then its inputs, recursing into each input's
// owner before the next sibling. Nodes are visited at most once.
func PreorderTraverseVariables(root Node, visit func(*Variable), order OperandOrder) {
	visited := make(map[Node]struct{})
	traverseVariables(root, visited, visit, order, true)
}

// PostorderTraverseVariables visits every variable reachable from root,
// with a node's outputs visited after all of its inputs.
func PostorderTraverseVariables(root Node, visit func(*Variable), order OperandOrder) {
	visited := make(map[Node]struct{})
	traverseVariables(root, visited, visit, order, false)
}

// traverseVariables is the shared recursion. The visited set is keyed by
// node identity so graphs with shared substructure stay linear.
func traverseVariables(root Node, visited map[Node]struct{}, visit func(*Variable), order OperandOrder, preOrder bool) {
	visited[root] = struct{}{}
	outputs := root.Outputs()

	if preOrder {
		for _, out := range outputs {
			visit(out)
		}
	}

	for _, in := range operands(root, order) {
		if in.IsOutput() {
			owner := in.Owner()
			if _, seen := visited[owner]; !seen {
				traverseVariables(owner, visited, visit, order, preOrder)
			}
		} else {
			visit(in)
		}
	}

	if !preOrder {
		for _, out := range outputs {
			visit(out)
		}
	}
}

// Collect returns the set of all nodes reachable from root, including the
// internals of nested block composites.
func Collect(root Node) map[Node]struct{} {
	nodes := make(map[Node]struct{})
	CollectInto(root, nodes)
	return nodes
}

// CollectInto adds every node reachable from root into nodes. Re-running
// it over an already-collected subgraph is a no-op.
func CollectInto(root Node, nodes map[Node]struct{}) {
	if _, ok := nodes[root]; ok {
		return
	}
	nodes[root] = struct{}{}

	if blk, ok := root.(*BlockNode); ok {
		for inner := range blk.InnerNodes() {
			nodes[inner] = struct{}{}
		}
	}

	for _, in := range root.Inputs() {
		if in.IsOutput() {
			CollectInto(in.Owner(), nodes)
		}
	}
}

// DetermineInputs returns the externally visible leaf variables of the
// graph under root: every non-Output variable, deduplicated by variable
// identity, in first-encountered pre-order.
func DetermineInputs(root Node, order OperandOrder) []*Variable {
	var inputs []*Variable
	unique := make(map[*Variable]struct{})

	PreorderTraverseVariables(root, func(v *Variable) {
		if v.IsOutput() {
			return
		}
		if _, seen := unique[v]; seen {
			return
		}
		unique[v] = struct{}{}
		inputs = append(inputs, v)
	}, order)

	return inputs
}
