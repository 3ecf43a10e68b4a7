package autodiff

import (
	"fmt"

	"github.com/born-ml/cgraph/internal/tensor"
)

// Variable is a data node: one tensor value flowing through the graph,
// together with its gradient accumulator.
//
// A Variable without a parent is a source. Its topology is write-once: the
// consumer list only grows through Connect and is never rewired.
type Variable struct {
	graph *Graph
	name  string

	data     *tensor.RawTensor // Value storage
	grad     *tensor.RawTensor // Gradient accumulator, allocated on first use
	needGrad bool
	rank     int

	parent    *Function   // Producer, nil for sources
	consumers []*Function // Distinct consumers in connection order
}

// NewVariable creates a zero-valued source variable.
func (g *Graph) NewVariable(shape tensor.Shape, dtype tensor.DataType, needGrad bool) (*Variable, error) {
	data, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("new variable: %w", err)
	}
	return g.NewVariableFrom(data, needGrad)
}

// NewVariableFrom creates a source variable holding data.
func (g *Graph) NewVariableFrom(data *tensor.RawTensor, needGrad bool) (*Variable, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil data", ErrNilVariable)
	}
	return &Variable{
		graph:    g,
		data:     data,
		needGrad: needGrad,
	}, nil
}

// Graph returns the graph the variable belongs to.
func (v *Variable) Graph() *Graph {
	return v.graph
}

// Name returns the variable name, empty if unset.
func (v *Variable) Name() string {
	return v.name
}

// SetName names the variable for logs and errors.
func (v *Variable) SetName(name string) *Variable {
	v.name = name
	return v
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	if v.name != "" {
		return v.name
	}
	if v.parent != nil {
		return fmt.Sprintf("%s.out", v.parent)
	}
	return fmt.Sprintf("source%v", v.data.Shape())
}

// Data returns the value tensor.
func (v *Variable) Data() *tensor.RawTensor {
	return v.data
}

// SetData replaces the value tensor. Shape and dtype must not change.
func (v *Variable) SetData(data *tensor.RawTensor) error {
	if data.DType() != v.data.DType() || !data.Shape().Equal(v.data.Shape()) {
		return fmt.Errorf("%w: set data %v %s on %s", tensor.ErrShapeMismatch, data.Shape(), data.DType(), v)
	}
	v.data = data
	return nil
}

// Shape returns the value shape.
func (v *Variable) Shape() tensor.Shape {
	return v.data.Shape()
}

// DType returns the value dtype.
func (v *Variable) DType() tensor.DataType {
	return v.data.DType()
}

// NeedGrad reports whether gradients are computed for this variable.
func (v *Variable) NeedGrad() bool {
	return v.needGrad
}

// Rank returns the producer's rank, or 0 for a source.
func (v *Variable) Rank() int {
	return v.rank
}

// Parent returns the producing Function, nil for a source.
func (v *Variable) Parent() *Function {
	return v.parent
}

// IsSource reports whether the variable has no producer.
func (v *Variable) IsSource() bool {
	return v.parent == nil
}

// Consumers returns a copy of the consumer list in connection order.
func (v *Variable) Consumers() []*Function {
	out := make([]*Function, len(v.consumers))
	copy(out, v.consumers)
	return out
}

// Grad returns the gradient accumulator, allocating a zeroed one on first use.
func (v *Variable) Grad() *tensor.RawTensor {
	if v.grad == nil {
		// Shape and dtype were validated when data was created.
		v.grad, _ = tensor.NewRaw(v.data.Shape(), v.data.DType())
	}
	return v.grad
}

// ZeroGrad clears the gradient accumulator.
func (v *Variable) ZeroGrad() {
	if v.grad != nil {
		v.grad.Zero()
	}
}

// Accumulate combines delta into the gradient accumulator: it replaces the
// contents when overwrite is true and adds otherwise.
// A variable that does not need grad is never written.
func (v *Variable) Accumulate(delta *tensor.RawTensor, overwrite bool) error {
	if !v.needGrad {
		return nil
	}
	var err error
	if overwrite {
		err = v.Grad().CopyFrom(delta)
	} else {
		err = v.Grad().AddInPlace(delta)
	}
	if err != nil {
		return fmt.Errorf("%w: accumulate into %s: %w", ErrGradShape, v, err)
	}
	return nil
}

// addConsumer registers fn once, keeping connection order.
func (v *Variable) addConsumer(fn *Function) {
	for _, c := range v.consumers {
		if c == fn {
			return
		}
	}
	v.consumers = append(v.consumers, fn)
}
