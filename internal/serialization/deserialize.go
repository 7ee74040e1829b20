package serialization

import (
	"fmt"

	"github.com/weft-ml/weft/internal/composite"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/graph/ops"
	"github.com/weft-ml/weft/internal/tensor"
)

type decodeFunc func(Dict, tensor.Device) (*composite.Composite, error)

// decoders dispatches on the artifact's format version. Every version
// ever written stays readable here.
var decoders = map[int64]decodeFunc{
	Version1: decodeVersion1,
	Version2: decodeVersion2,
	Version3: decodeVersion3,
}

// Deserialize reconstructs a composite from its dictionary form,
// placing Constant and Parameter values on the given device. UIDs of
// variables and nodes are restored, not regenerated. A graph saved with
// unresolved placeholders loads with them still unresolved; bind them
// through ReplacePlaceholders on the result before executing it.
func Deserialize(d Dict, device tensor.Device) (*composite.Composite, error) {
	if t, ok := asString(d[keyType]); ok && t != typeComposite {
		return nil, fmt.Errorf("%w: artifact type %q", ErrMalformed, t)
	}
	version, ok := asInt(d[keyVersion])
	if !ok {
		return nil, fmt.Errorf("%w: missing version", ErrMalformed)
	}
	decode, ok := decoders[version]
	if !ok {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}
	return decode(d, device)
}

// Unmarshal is the msgpack decoding followed by Deserialize.
func Unmarshal(data []byte, device tensor.Device) (*composite.Composite, error) {
	d, err := DecodeDict(data)
	if err != nil {
		return nil, err
	}
	return Deserialize(d, device)
}

func decodeVersion3(d Dict, device tensor.Device) (*composite.Composite, error) {
	return decodeComposite(d, device, true)
}

// decodeVersion2 reads the legacy layout where operation state lived in
// one aggregate-level dictionary keyed by node UID.
func decodeVersion2(d Dict, device tensor.Device) (*composite.Composite, error) {
	c, err := decodeComposite(d, device, false)
	if err != nil {
		return nil, err
	}

	stateful, ok := asDict(d[keyStatefulFunctions])
	if !ok {
		return c, nil
	}
	nodes := make(map[string]graph.Node)
	for n := range graph.Collect(c.Root()) {
		nodes[n.UID()] = n
	}
	for uid, raw := range stateful {
		state, ok := asDict(raw)
		if !ok {
			return nil, fmt.Errorf("%w: state for node %s", ErrMalformed, uid)
		}
		n, ok := nodes[uid]
		if !ok {
			return nil, fmt.Errorf("%w: state references unknown node %s", ErrMalformed, uid)
		}
		if err := restoreNodeState(n, state); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func decodeVersion1(d Dict, device tensor.Device) (*composite.Composite, error) {
	return decodeComposite(d, device, false)
}

func decodeComposite(d Dict, device tensor.Device, inlineState bool) (*composite.Composite, error) {
	root, _, err := decodeGraph(d, device, inlineState)
	if err != nil {
		return nil, err
	}
	name, _ := asString(d[keyName])
	c, err := composite.Create(root, name)
	if err != nil {
		return nil, err
	}
	if uid, ok := asString(d[keyUID]); ok && uid != "" {
		c.SetUID(uid)
	}
	return c, nil
}

// decodeGraph rebuilds the node graph of one dictionary and returns its
// root plus every variable by UID.
func decodeGraph(d Dict, device tensor.Device, inlineState bool) (graph.Node, map[string]*graph.Variable, error) {
	vars := make(map[string]*graph.Variable)

	varRecords, ok := asSlice(d[keyVariables])
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing variables", ErrMalformed)
	}
	for _, raw := range varRecords {
		rec, ok := asDict(raw)
		if !ok {
			return nil, nil, fmt.Errorf("%w: variable record", ErrMalformed)
		}
		v, err := decodeVariable(rec, device)
		if err != nil {
			return nil, nil, err
		}
		vars[v.UID()] = v
	}

	fnRecords, ok := asSlice(d[keyFunctions])
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing functions", ErrMalformed)
	}
	nodes := make(map[string]graph.Node, len(fnRecords))
	for _, raw := range fnRecords {
		rec, ok := asDict(raw)
		if !ok {
			return nil, nil, fmt.Errorf("%w: function record", ErrMalformed)
		}
		n, err := decodeNode(rec, vars, device, inlineState)
		if err != nil {
			return nil, nil, err
		}
		nodes[n.UID()] = n
	}

	rootUID, ok := asString(d[keyRootUID])
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing root uid", ErrMalformed)
	}
	root, ok := nodes[rootUID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: root %s not among functions", ErrMalformed, rootUID)
	}
	return root, vars, nil
}

func decodeVariable(rec Dict, device tensor.Device) (*graph.Variable, error) {
	uid, ok := asString(rec[keyUID])
	if !ok {
		return nil, fmt.Errorf("%w: variable without uid", ErrMalformed)
	}
	name, _ := asString(rec[keyName])
	kind, _ := asString(rec[keyKind])

	var v *graph.Variable
	switch kind {
	case "Input", "Placeholder":
		shape, ok := asShape(rec[keyShape])
		if !ok {
			return nil, fmt.Errorf("%w: variable %s shape", ErrMalformed, uid)
		}
		dtypeName, _ := asString(rec[keyDType])
		dtype, ok := tensor.ParseDataType(dtypeName)
		if !ok {
			return nil, fmt.Errorf("%w: variable %s dtype %q", ErrMalformed, uid, dtypeName)
		}
		if kind == "Input" {
			v = graph.NewInput(name, shape, dtype)
		} else {
			v = graph.NewPlaceholder(name, shape, dtype)
		}
	case "Constant", "Parameter":
		value, ok := asDict(rec[keyValue])
		if !ok {
			return nil, fmt.Errorf("%w: variable %s value", ErrMalformed, uid)
		}
		t, err := decodeTensor(value, device)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", uid, err)
		}
		if kind == "Constant" {
			v = graph.NewConstant(name, t)
		} else {
			v = graph.NewParameter(name, t)
		}
	default:
		return nil, fmt.Errorf("%w: variable %s kind %q", ErrMalformed, uid, kind)
	}

	v.SetUID(uid)
	return v, nil
}

func decodeTensor(rec Dict, device tensor.Device) (*tensor.RawTensor, error) {
	shape, ok := asShape(rec[keyShape])
	if !ok {
		return nil, fmt.Errorf("%w: tensor shape", ErrMalformed)
	}
	dtypeName, _ := asString(rec[keyDType])
	dtype, ok := tensor.ParseDataType(dtypeName)
	if !ok {
		return nil, fmt.Errorf("%w: tensor dtype %q", ErrMalformed, dtypeName)
	}
	data, ok := asBytes(rec[keyData])
	if !ok {
		return nil, fmt.Errorf("%w: tensor data", ErrMalformed)
	}

	t, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	if len(data) != t.ByteSize() {
		return nil, fmt.Errorf("%w: tensor data is %d bytes, shape %v needs %d",
			ErrMalformed, len(data), shape, t.ByteSize())
	}
	copy(t.Data(), data)
	return t, nil
}

func decodeNode(rec Dict, vars map[string]*graph.Variable, device tensor.Device, inlineState bool) (graph.Node, error) {
	uid, ok := asString(rec[keyUID])
	if !ok {
		return nil, fmt.Errorf("%w: function without uid", ErrMalformed)
	}
	name, _ := asString(rec[keyName])
	op, ok := asString(rec[keyOp])
	if !ok {
		return nil, fmt.Errorf("%w: function %s without op", ErrMalformed, uid)
	}

	var node graph.Node
	if op == graph.BlockOpName {
		b, err := decodeBlock(rec, vars, device, inlineState)
		if err != nil {
			return nil, err
		}
		node = b
	} else {
		if !ops.Known(op) {
			return nil, fmt.Errorf("%w: %q in function %s", ErrUnknownOperation, op, uid)
		}
		inputs, err := lookupVariables(rec[keyInputUIDs], vars)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", uid, err)
		}
		var attrs map[string]any
		if a, ok := asDict(rec[keyAttributes]); ok {
			attrs = map[string]any(a)
		}
		p, err := graph.NewPrimitiveWithAttributes(op, inputs, attrs, name)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", uid, err)
		}
		p.SetUID(uid)
		if inlineState {
			if state, ok := asDict(rec[keyState]); ok {
				if err := restoreNodeState(p, state); err != nil {
					return nil, err
				}
			}
		}
		node = p
	}

	if err := restoreOutputUIDs(node, rec, vars); err != nil {
		return nil, err
	}
	return node, nil
}

func decodeBlock(rec Dict, vars map[string]*graph.Variable, device tensor.Device, inlineState bool) (*graph.BlockNode, error) {
	uid, _ := asString(rec[keyUID])
	name, _ := asString(rec[keyName])

	innerDict, ok := asDict(rec[keyBlockComposite])
	if !ok {
		return nil, fmt.Errorf("%w: block %s without nested graph", ErrMalformed, uid)
	}
	innerRoot, innerVars, err := decodeGraph(innerDict, device, inlineState)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", uid, err)
	}

	argRecords, ok := asDict(rec[keyBlockArguments])
	if !ok {
		return nil, fmt.Errorf("%w: block %s without arguments", ErrMalformed, uid)
	}
	argMap := make(map[*graph.Variable]*graph.Variable, len(argRecords))
	for innerUID, raw := range argRecords {
		outerUID, ok := asString(raw)
		if !ok {
			return nil, fmt.Errorf("%w: block %s argument for %s", ErrMalformed, uid, innerUID)
		}
		inner, ok := innerVars[innerUID]
		if !ok {
			return nil, fmt.Errorf("%w: block %s maps unknown inner variable %s", ErrMalformed, uid, innerUID)
		}
		outer, ok := vars[outerUID]
		if !ok {
			return nil, fmt.Errorf("%w: block %s maps to unknown outer variable %s", ErrMalformed, uid, outerUID)
		}
		argMap[inner] = outer
	}

	b, err := graph.NewBlock(innerRoot, argMap, name)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", uid, err)
	}
	b.SetUID(uid)
	return b, nil
}

// restoreOutputUIDs gives the node's regenerated output variables their
// recorded UIDs and registers them for downstream input lookup.
func restoreOutputUIDs(n graph.Node, rec Dict, vars map[string]*graph.Variable) error {
	uids, ok := asSlice(rec[keyOutputUIDs])
	if !ok {
		return fmt.Errorf("%w: function %s output uids", ErrMalformed, n.UID())
	}
	outputs := n.Outputs()
	if len(uids) != len(outputs) {
		return fmt.Errorf("%w: function %s has %d outputs, record lists %d",
			ErrMalformed, n.UID(), len(outputs), len(uids))
	}
	for i, raw := range uids {
		uid, ok := asString(raw)
		if !ok {
			return fmt.Errorf("%w: function %s output uid", ErrMalformed, n.UID())
		}
		outputs[i].SetUID(uid)
		vars[uid] = outputs[i]
	}
	return nil
}

func lookupVariables(raw any, vars map[string]*graph.Variable) ([]*graph.Variable, error) {
	uids, ok := asSlice(raw)
	if !ok {
		return nil, fmt.Errorf("%w: input uids", ErrMalformed)
	}
	out := make([]*graph.Variable, len(uids))
	for i, r := range uids {
		uid, ok := asString(r)
		if !ok {
			return nil, fmt.Errorf("%w: input uid", ErrMalformed)
		}
		v, ok := vars[uid]
		if !ok {
			return nil, fmt.Errorf("%w: input references unknown variable %s", ErrMalformed, uid)
		}
		out[i] = v
	}
	return out, nil
}

func restoreNodeState(n graph.Node, state map[string]any) error {
	p, ok := n.(*graph.PrimitiveNode)
	if !ok {
		return fmt.Errorf("%w: state for non-primitive node %s", ErrMalformed, n.UID())
	}
	sc, ok := p.Kernel().(ops.StateCarrier)
	if !ok {
		return fmt.Errorf("%w: node %s (%s) carries no state", ErrMalformed, n.UID(), p.OpName())
	}
	if err := sc.RestoreState(state); err != nil {
		return fmt.Errorf("node %s: %w", n.UID(), err)
	}
	return nil
}
