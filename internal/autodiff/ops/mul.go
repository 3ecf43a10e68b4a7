package ops

import "github.com/born-ml/cgraph/internal/autodiff"

// MulOp represents an element-wise multiplication operation: output = a * b.
//
// Backward pass:
//   - d(a*b)/da = b, so grad_a = outputGrad * b
//   - d(a*b)/db = a, so grad_b = outputGrad * a
type MulOp struct {
	base
}

// NewMulOp creates a new MulOp.
func NewMulOp() *MulOp {
	return &MulOp{base: base{name: "Mul", inputs: 2, outputs: 1}}
}

// Setup requires both inputs to share shape and dtype.
func (op *MulOp) Setup(inputs []*autodiff.Variable) ([]autodiff.OutputSpec, error) {
	return sameShape(op.name, inputs, 1)
}

// Forward computes a * b.
func (op *MulOp) Forward(inputs, outputs []*autodiff.Variable) error {
	out := outputs[0].Data()
	if err := out.CopyFrom(inputs[0].Data()); err != nil {
		return err
	}
	return out.MulInPlace(inputs[1].Data())
}

// Backward computes input gradients for multiplication.
// Works when a and b are the same variable (x*x): the second slot accumulates.
func (op *MulOp) Backward(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error {
	grad := outputs[0].Grad()
	for i, in := range inputs {
		if !propagateDown[i] {
			continue
		}
		other := inputs[1-i]
		delta := grad.Clone()
		if err := delta.MulInPlace(other.Data()); err != nil {
			return err
		}
		if err := contribute(in, delta, accumulate[i]); err != nil {
			return err
		}
	}
	return nil
}
