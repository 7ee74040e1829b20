package ops

import (
	"fmt"
	"math/rand"

	"github.com/weft-ml/weft/internal/tensor"
)

// OpDropout zeroes a random fraction of elements and rescales the rest.
const OpDropout = "Dropout"

func init() {
	register(OpDropout, newDropout)
}

// dropoutKernel is the one stateful kernel: its RNG seed and draw offset
// are internal state that serialization must capture so a restored graph
// reproduces the exact mask sequence.
type dropoutKernel struct {
	rate   float64
	seed   int64
	offset int64

	mask *tensor.RawTensor // Mask of the most recent forward, reused by backward.
}

func newDropout(attrs map[string]any) (Kernel, error) {
	rate := 0.5
	if v, ok := attrs["rate"]; ok {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: invalid rate attribute %v", OpDropout, v)
		}
		rate = f
	}
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("%s: rate must be in [0, 1), got %v", OpDropout, rate)
	}

	seed := int64(1)
	if v, ok := attrs["seed"]; ok {
		i, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("%s: invalid seed attribute %v", OpDropout, v)
		}
		seed = i
	}

	return &dropoutKernel{rate: rate, seed: seed}, nil
}

func (k *dropoutKernel) OpName() string { return OpDropout }

func (k *dropoutKernel) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 input, got %d", OpDropout, len(inputs))
	}
	return inputs[0].Clone(), nil
}

func (k *dropoutKernel) Forward(inputs []*tensor.RawTensor, b tensor.Backend) *tensor.RawTensor {
	x := inputs[0]
	n := x.NumElements()

	// Replay the RNG stream up to the current offset so the mask sequence
	// is a pure function of (seed, offset).
	rng := rand.New(rand.NewSource(k.seed)) //nolint:gosec // Reproducibility requires a seeded PRNG.
	for i := int64(0); i < k.offset; i++ {
		rng.Float64()
	}

	mask := tensor.ZerosLikeRaw(x)
	scale := 1.0 / (1.0 - k.rate)
	switch mask.DType() {
	case tensor.Float32:
		data := mask.AsFloat32()
		for i := range data {
			if rng.Float64() >= k.rate {
				data[i] = float32(scale)
			}
		}
	case tensor.Float64:
		data := mask.AsFloat64()
		for i := range data {
			if rng.Float64() >= k.rate {
				data[i] = scale
			}
		}
	}
	k.offset += int64(n)
	k.mask = mask

	return b.Mul(x, mask)
}

func (k *dropoutKernel) Backward(outputGrad *tensor.RawTensor, _ []*tensor.RawTensor, _ *tensor.RawTensor, b tensor.Backend) []*tensor.RawTensor {
	if k.mask == nil {
		panic("dropout: backward called before forward")
	}
	return []*tensor.RawTensor{b.Mul(outputGrad, k.mask)}
}

// InternalState returns the RNG position.
func (k *dropoutKernel) InternalState() map[string]any {
	return map[string]any{
		"seed":   k.seed,
		"offset": k.offset,
	}
}

// RestoreState replaces the RNG position.
func (k *dropoutKernel) RestoreState(state map[string]any) error {
	seed, ok := toInt(state["seed"])
	if !ok {
		return fmt.Errorf("%s: state missing seed", OpDropout)
	}
	offset, ok := toInt(state["offset"])
	if !ok {
		return fmt.Errorf("%s: state missing offset", OpDropout)
	}
	k.seed = seed
	k.offset = offset
	k.mask = nil
	return nil
}

// toFloat coerces numeric decoder output to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toInt coerces numeric decoder output to int64.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
