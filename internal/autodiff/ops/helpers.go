package ops

import (
	"errors"
	"fmt"

	"github.com/born-ml/cgraph/internal/autodiff"
	"github.com/born-ml/cgraph/internal/tensor"
)

// ErrIncompatibleInputs is returned by Setup when inputs differ in shape or dtype.
var ErrIncompatibleInputs = errors.New("incompatible inputs")

// sameShape checks all inputs share one shape and dtype and returns n output
// specs of that shape.
func sameShape(name string, inputs []*autodiff.Variable, n int) ([]autodiff.OutputSpec, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s: %w: no inputs", name, ErrIncompatibleInputs)
	}
	first := inputs[0]
	for i, in := range inputs[1:] {
		if in.DType() != first.DType() || !in.Shape().Equal(first.Shape()) {
			return nil, fmt.Errorf("%s: %w: input %d is %v %s, input 0 is %v %s",
				name, ErrIncompatibleInputs, i+1, in.Shape(), in.DType(), first.Shape(), first.DType())
		}
	}
	specs := make([]autodiff.OutputSpec, n)
	for i := range specs {
		specs[i] = autodiff.OutputSpec{Shape: first.Shape().Clone(), DType: first.DType()}
	}
	return specs, nil
}

// contribute hands delta to the input's accumulator following the scheduler's flag.
func contribute(in *autodiff.Variable, delta *tensor.RawTensor, accumulate bool) error {
	return in.Accumulate(delta, !accumulate)
}
