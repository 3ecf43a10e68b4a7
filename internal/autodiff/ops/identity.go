package ops

import "github.com/born-ml/cgraph/internal/autodiff"

// IdentityOp copies its input: output = x.
type IdentityOp struct {
	base
}

// NewIdentityOp creates a new IdentityOp.
func NewIdentityOp() *IdentityOp {
	return &IdentityOp{base: base{name: "Identity", inputs: 1, outputs: 1}}
}

// Setup returns an output shaped like x.
func (op *IdentityOp) Setup(inputs []*autodiff.Variable) ([]autodiff.OutputSpec, error) {
	return sameShape(op.name, inputs, 1)
}

// Forward copies x.
func (op *IdentityOp) Forward(inputs, outputs []*autodiff.Variable) error {
	return outputs[0].Data().CopyFrom(inputs[0].Data())
}

// Backward passes the output gradient through.
func (op *IdentityOp) Backward(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error {
	if !propagateDown[0] {
		return nil
	}
	return contribute(inputs[0], outputs[0].Grad(), accumulate[0])
}
