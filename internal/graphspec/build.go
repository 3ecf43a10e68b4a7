package graphspec

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/cgraph/internal/autodiff"
	"github.com/born-ml/cgraph/internal/autodiff/ops"
	"github.com/born-ml/cgraph/internal/tensor"
)

// ErrInjected is returned by the backward step of a function marked fail.
var ErrInjected = errors.New("injected backward failure")

// Built is a graph file materialized on an autodiff.Graph.
type Built struct {
	File      *File
	Graph     *autodiff.Graph
	Variables map[string]*autodiff.Variable
	Functions map[string]*autodiff.Function
	Terminals []*autodiff.Variable

	order []string
}

// Build creates the file's sources and connects its functions on g in file
// order.
func (f *File) Build(g *autodiff.Graph) (*Built, error) {
	b := &Built{
		File:      f,
		Graph:     g,
		Variables: make(map[string]*autodiff.Variable, len(f.Sources)),
		Functions: make(map[string]*autodiff.Function, len(f.Functions)),
	}

	for _, s := range f.Sources {
		v, err := newSource(g, s)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.Name, err)
		}
		b.Variables[s.Name] = v.SetName(s.Name)
	}

	for _, spec := range f.Functions {
		inputs := make([]*autodiff.Variable, len(spec.Inputs))
		for i, name := range spec.Inputs {
			v, ok := b.Variables[name]
			if !ok {
				return nil, fmt.Errorf("%w: %q used by function %q", ErrUnknownVariable, name, spec.Name)
			}
			inputs[i] = v
		}

		names := spec.outputNames()
		op, err := b.newOp(spec, len(names))
		if err != nil {
			return nil, err
		}
		fn := autodiff.NewFunction(op)
		outputs, err := g.Connect(fn, inputs, len(names))
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", spec.Name, err)
		}
		b.Functions[spec.Name] = fn
		for i, out := range outputs {
			b.Variables[names[i]] = out.SetName(names[i])
		}
	}

	for _, name := range f.Backward {
		v, ok := b.Variables[name]
		if !ok {
			return nil, fmt.Errorf("%w: backward variable %q", ErrUnknownVariable, name)
		}
		b.Terminals = append(b.Terminals, v)
	}
	return b, nil
}

func newSource(g *autodiff.Graph, s SourceSpec) (*autodiff.Variable, error) {
	shape := tensor.Shape(s.Shape)
	if len(s.Value) == 0 {
		return g.NewVariable(shape, tensor.Float32, s.needGrad())
	}
	data, err := tensor.FromFloat32(s.Value, shape)
	if err != nil {
		return nil, err
	}
	return g.NewVariableFrom(data, s.needGrad())
}

// newOp returns the Operation for spec wrapped so its backward step is
// recorded under the function's name.
func (b *Built) newOp(spec FunctionSpec, nOutputs int) (autodiff.Operation, error) {
	var op autodiff.Operation
	switch spec.Op {
	case OpCallback:
		op = ops.NewCallback(spec.Name, len(spec.Inputs), nOutputs)
	case OpIdentity:
		op = ops.NewIdentityOp()
	case OpAdd:
		op = ops.NewAddOp()
	case OpMul:
		op = ops.NewMulOp()
	case OpScale:
		op = ops.NewScaleOp(spec.Factor)
	case OpSplit:
		op = ops.NewSplitOp(nOutputs)
	default:
		return nil, fmt.Errorf("%w: %q in function %q", ErrUnknownOp, spec.Op, spec.Name)
	}
	return &recorded{Operation: op, name: spec.Name, fail: spec.Fail, built: b}, nil
}

// Forward runs the forward pass up to the terminals.
func (b *Built) Forward(ctx context.Context) error {
	return b.Graph.Forward(ctx, b.Terminals)
}

// Backward runs one backward pass from the terminals and returns the
// functions in the order their backward steps ran, including a failing one.
func (b *Built) Backward(ctx context.Context, cfg autodiff.BackwardConfig) ([]string, error) {
	b.order = b.order[:0]
	err := b.Graph.Backward(ctx, b.Terminals, cfg)
	return b.Order(), err
}

// Order returns the backward order recorded by the last pass.
func (b *Built) Order() []string {
	return append([]string(nil), b.order...)
}

// recorded names an Operation after its function and logs its backward steps.
type recorded struct {
	autodiff.Operation

	name  string
	fail  bool
	built *Built
}

func (r *recorded) Name() string { return r.name }

func (r *recorded) Backward(inputs, outputs []*autodiff.Variable, propagateDown, accumulate []bool) error {
	r.built.order = append(r.built.order, r.name)
	if r.fail {
		return fmt.Errorf("%w: %s", ErrInjected, r.name)
	}
	return r.Operation.Backward(inputs, outputs, propagateDown, accumulate)
}
