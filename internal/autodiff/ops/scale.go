package ops

import "github.com/born-ml/cgraph/internal/autodiff"

// ScaleOp multiplies its input by a constant: output = c * x.
// Backward: grad_x = c * outputGrad.
type ScaleOp struct {
	base
	factor float64
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(factor float64) *ScaleOp {
	return &ScaleOp{base: base{name: "Scale", inputs: 1, outputs: 1}, factor: factor}
}

// Factor returns the constant multiplier.
func (op *ScaleOp) Factor() float64 {
	return op.factor
}

// Setup returns an output shaped like x.
func (op *ScaleOp) Setup(inputs []*autodiff.Variable) ([]autodiff.OutputSpec, error) {
	return sameShape(op.name, inputs, 1)
}

// Forward computes c * x.
func (op *ScaleOp) Forward(inputs, outputs []*autodiff.Variable) error {
	out := outputs[0].Data()
	if err := out.CopyFrom(inputs[0].Data()); err != nil {
		return err
	}
	out.ScaleInPlace(op.factor)
	return nil
}

// Backward writes c * outputGrad into x.
func (op *ScaleOp) Backward(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error {
	if !propagateDown[0] {
		return nil
	}
	delta := outputs[0].Grad().Clone()
	delta.ScaleInPlace(op.factor)
	return contribute(inputs[0], delta, accumulate[0])
}
