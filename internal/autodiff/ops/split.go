package ops

import (
	"fmt"

	"github.com/born-ml/cgraph/internal/autodiff"
)

// SplitOp fans one input out to n identical outputs.
//
// Backward pass:
//
//	grad_x = Σ_k grad_out_k
//
// Outputs that no reachable consumer used hold zero gradients, so the sum is
// exact even when only some outputs feed the loss.
type SplitOp struct {
	base
}

// NewSplitOp creates a SplitOp with n outputs. Panics if n < 1.
func NewSplitOp(n int) *SplitOp {
	if n < 1 {
		panic(fmt.Sprintf("split: need at least one output, got %d", n))
	}
	return &SplitOp{base: base{name: "Split", inputs: 1, outputs: n}}
}

// Setup returns n outputs shaped like x.
func (op *SplitOp) Setup(inputs []*autodiff.Variable) ([]autodiff.OutputSpec, error) {
	return sameShape(op.name, inputs, op.outputs)
}

// Forward copies x into every output.
func (op *SplitOp) Forward(inputs, outputs []*autodiff.Variable) error {
	for _, out := range outputs {
		if err := out.Data().CopyFrom(inputs[0].Data()); err != nil {
			return err
		}
	}
	return nil
}

// Backward sums all output gradients into x.
func (op *SplitOp) Backward(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error {
	if !propagateDown[0] {
		return nil
	}
	sum := outputs[0].Grad().Clone()
	for _, out := range outputs[1:] {
		if err := sum.AddInPlace(out.Grad()); err != nil {
			return err
		}
	}
	return contribute(inputs[0], sum, accumulate[0])
}
