package ops

import "github.com/born-ml/cgraph/internal/autodiff"

// AddOp represents an element-wise addition operation: output = a + b.
//
// Backward pass:
//   - d(a+b)/da = 1, so grad_a = outputGrad
//   - d(a+b)/db = 1, so grad_b = outputGrad
type AddOp struct {
	base
}

// NewAddOp creates a new AddOp.
func NewAddOp() *AddOp {
	return &AddOp{base: base{name: "Add", inputs: 2, outputs: 1}}
}

// Setup requires both inputs to share shape and dtype.
func (op *AddOp) Setup(inputs []*autodiff.Variable) ([]autodiff.OutputSpec, error) {
	return sameShape(op.name, inputs, 1)
}

// Forward computes a + b.
func (op *AddOp) Forward(inputs, outputs []*autodiff.Variable) error {
	out := outputs[0].Data()
	if err := out.CopyFrom(inputs[0].Data()); err != nil {
		return err
	}
	return out.AddInPlace(inputs[1].Data())
}

// Backward passes the output gradient unchanged to both inputs.
func (op *AddOp) Backward(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error {
	grad := outputs[0].Grad()
	for i, in := range inputs {
		if !propagateDown[i] {
			continue
		}
		if err := contribute(in, grad, accumulate[i]); err != nil {
			return err
		}
	}
	return nil
}
