package serialization

import (
	"fmt"

	"github.com/weft-ml/weft/internal/composite"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/graph/ops"
	"github.com/weft-ml/weft/internal/tensor"
)

// Serialize renders the composite as a version-tagged dictionary.
// Constant and Parameter values are stored inline; Input and
// Placeholder leaves are stored as structure only.
func Serialize(c *composite.Composite) (Dict, error) {
	d, err := encodeGraph(c.Root(), c.UID(), c.Name())
	if err != nil {
		return nil, err
	}
	d[keyVersion] = int64(CurrentVersion)
	d[keyType] = typeComposite
	return d, nil
}

// Marshal is Serialize followed by the msgpack encoding.
func Marshal(c *composite.Composite) ([]byte, error) {
	d, err := Serialize(c)
	if err != nil {
		return nil, err
	}
	return EncodeDict(d)
}

func encodeGraph(root graph.Node, uid, name string) (Dict, error) {
	order := collectPostorder(root)

	var varRecords []any
	seen := make(map[*graph.Variable]struct{})
	for _, n := range order {
		for _, in := range n.Inputs() {
			if in.IsOutput() {
				continue
			}
			if _, ok := seen[in]; ok {
				continue
			}
			seen[in] = struct{}{}
			varRecords = append(varRecords, encodeVariable(in))
		}
	}

	var fnRecords []any
	for _, n := range order {
		rec, err := encodeNode(n)
		if err != nil {
			return nil, err
		}
		fnRecords = append(fnRecords, rec)
	}

	return Dict{
		keyUID:       uid,
		keyName:      name,
		keyRootUID:   root.UID(),
		keyVariables: varRecords,
		keyFunctions: fnRecords,
	}, nil
}

func encodeVariable(v *graph.Variable) Dict {
	rec := Dict{
		keyUID:   v.UID(),
		keyName:  v.Name(),
		keyKind:  v.Kind().String(),
		keyShape: shapeToAny(v.Shape()),
		keyDType: v.DType().String(),
	}
	if v.Kind() == graph.Constant || v.Kind() == graph.Parameter {
		rec[keyValue] = encodeTensor(v.Value())
	}
	return rec
}

func encodeTensor(t *tensor.RawTensor) Dict {
	return Dict{
		keyShape: shapeToAny(t.Shape()),
		keyDType: t.DType().String(),
		keyData:  append([]byte(nil), t.Data()...),
	}
}

func encodeNode(n graph.Node) (Dict, error) {
	switch node := n.(type) {
	case *graph.PrimitiveNode:
		return encodePrimitive(node), nil
	case *graph.BlockNode:
		return encodeBlock(node)
	default:
		return nil, fmt.Errorf("%w: cannot serialize node kind %T", ErrMalformed, n)
	}
}

func encodePrimitive(n *graph.PrimitiveNode) Dict {
	rec := Dict{
		keyUID:        n.UID(),
		keyName:       n.Name(),
		keyOp:         n.OpName(),
		keyInputUIDs:  variableUIDs(n.Inputs()),
		keyOutputUIDs: variableUIDs(n.Outputs()),
	}
	if attrs := n.Attributes(); len(attrs) > 0 {
		rec[keyAttributes] = attrs
	}
	if sc, ok := n.Kernel().(ops.StateCarrier); ok {
		rec[keyState] = sc.InternalState()
	}
	return rec
}

func encodeBlock(b *graph.BlockNode) (Dict, error) {
	inner, err := encodeGraph(b.InnerRoot(), b.UID()+"_inner", b.Name())
	if err != nil {
		return nil, err
	}

	args := make(Dict, len(b.Arguments()))
	for innerLeaf, outer := range b.Arguments() {
		args[innerLeaf.UID()] = outer.UID()
	}

	return Dict{
		keyUID:            b.UID(),
		keyName:           b.Name(),
		keyOp:             graph.BlockOpName,
		keyInputUIDs:      variableUIDs(b.Inputs()),
		keyOutputUIDs:     variableUIDs(b.Outputs()),
		keyBlockComposite: inner,
		keyBlockArguments: args,
	}, nil
}

func variableUIDs(vars []*graph.Variable) []any {
	out := make([]any, len(vars))
	for i, v := range vars {
		out[i] = v.UID()
	}
	return out
}

// collectPostorder lists the nodes reachable from root with every
// node's producers ahead of it. Block internals are not expanded here;
// a block serializes as one record holding its own nested graph.
func collectPostorder(root graph.Node) []graph.Node {
	var order []graph.Node
	visited := make(map[graph.Node]struct{})

	var walk func(n graph.Node)
	walk = func(n graph.Node) {
		if _, ok := visited[n]; ok {
			return
		}
		visited[n] = struct{}{}
		for _, in := range n.Inputs() {
			if in.IsOutput() && in.Owner() != nil {
				walk(in.Owner())
			}
		}
		order = append(order, n)
	}
	walk(root)
	return order
}
