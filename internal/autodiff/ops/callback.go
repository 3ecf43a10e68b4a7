package ops

import (
	"github.com/born-ml/cgraph/internal/autodiff"
	"github.com/born-ml/cgraph/internal/tensor"
)

// Callback is an Operation built from closures. Nil closures are no-ops,
// except SetupFunc whose default mirrors the first input's shape and dtype
// on every output (a float32 scalar when there are no inputs).
//
// Example:
//
//	var order []string
//	cb := ops.NewCallback("A", 1, 1)
//	cb.BackwardFunc = func(_, _ []*autodiff.Variable, _, _ []bool) error {
//	    order = append(order, "A")
//	    return nil
//	}
type Callback struct {
	base

	SetupFunc    func(inputs []*autodiff.Variable) ([]autodiff.OutputSpec, error)
	ForwardFunc  func(inputs, outputs []*autodiff.Variable) error
	BackwardFunc func(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error
	CleanupFunc  func()
}

// NewCallback creates a Callback with the given arity.
// numInputs may be autodiff.VariadicInputs.
func NewCallback(name string, numInputs, numOutputs int) *Callback {
	return &Callback{base: base{name: name, inputs: numInputs, outputs: numOutputs}}
}

// Setup implements autodiff.Operation.
func (c *Callback) Setup(inputs []*autodiff.Variable) ([]autodiff.OutputSpec, error) {
	if c.SetupFunc != nil {
		return c.SetupFunc(inputs)
	}
	spec := autodiff.OutputSpec{Shape: tensor.Shape{}, DType: tensor.Float32}
	if len(inputs) > 0 {
		spec = autodiff.OutputSpec{Shape: inputs[0].Shape().Clone(), DType: inputs[0].DType()}
	}
	specs := make([]autodiff.OutputSpec, c.outputs)
	for i := range specs {
		specs[i] = spec
	}
	return specs, nil
}

// Forward implements autodiff.Operation.
func (c *Callback) Forward(inputs, outputs []*autodiff.Variable) error {
	if c.ForwardFunc == nil {
		return nil
	}
	return c.ForwardFunc(inputs, outputs)
}

// Backward implements autodiff.Operation.
func (c *Callback) Backward(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error {
	if c.BackwardFunc == nil {
		return nil
	}
	return c.BackwardFunc(inputs, outputs, propagateDown, accumulate)
}

// Cleanup implements autodiff.Operation.
func (c *Callback) Cleanup() {
	if c.CleanupFunc != nil {
		c.CleanupFunc()
	}
}
