package autodiff

import "github.com/born-ml/cgraph/internal/tensor"

// VariadicInputs is returned by Operation.NumInputs when any input count is accepted.
const VariadicInputs = -1

// OutputSpec describes one output produced by an Operation's Setup.
type OutputSpec struct {
	Shape tensor.Shape
	DType tensor.DataType
}

// Operation is the unit of computation wrapped by a Function.
//
// The graph calls Setup while connecting and Backward while traversing.
// Forward and Cleanup belong to the caller: Variable.Forward and
// Function.Cleanup are thin drivers for them.
type Operation interface {
	// Name identifies the operation in logs and errors.
	Name() string

	// NumInputs returns the required input count, or VariadicInputs.
	NumInputs() int

	// NumOutputs returns the number of outputs produced.
	NumOutputs() int

	// Setup inspects the inputs and returns metadata for each output.
	// A non-nil error rejects the inputs; Connect reports it as ErrShape.
	Setup(inputs []*Variable) ([]OutputSpec, error)

	// Forward computes output values from input values.
	Forward(inputs, outputs []*Variable) error

	// Backward writes input gradients from output gradients.
	//
	// propagateDown[i] is false when inputs[i] needs no gradient; the step must
	// not touch that input's accumulator. accumulate[i] is false when this is the
	// first contribution to inputs[i] in the current pass (overwrite), true when
	// the contribution must be added to what is already there.
	Backward(inputs, outputs []*Variable, propagateDown, accumulate []bool) error

	// Cleanup releases any resources held by the operation.
	Cleanup()
}
