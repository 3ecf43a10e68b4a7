package autodiff

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/cgraph/internal/tensor"
)

// Connect wires fn to inputs and returns its nOutputs new output variables.
//
// Steps:
//  1. Validate the shell, the inputs and the arity against the Operation
//  2. Call Setup to obtain output metadata
//  3. Register fn as a consumer of every distinct input
//  4. Fix fn's rank: 1 + max producer rank, or 0 when all inputs are sources
//  5. Create the outputs, each inheriting fn's rank and recording fn as producer
//
// Every check runs before the graph is touched, so a failed Connect leaves no
// consumer registered and creates no outputs.
func (g *Graph) Connect(fn *Function, inputs []*Variable, nOutputs int) ([]*Variable, error) {
	if fn == nil || fn.op == nil {
		return nil, ErrNilFunction
	}
	if fn.graph != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, fn)
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("%w: input %d of %s", ErrNilVariable, i, fn.Name())
		}
		if in.graph != g {
			return nil, fmt.Errorf("%w: input %d (%s) of %s", ErrForeignVariable, i, in, fn.Name())
		}
	}

	op := fn.op
	if want := op.NumInputs(); want != VariadicInputs && want != len(inputs) {
		return nil, fmt.Errorf("%w: %s requires %d inputs, got %d", ErrArityMismatch, op.Name(), want, len(inputs))
	}
	if want := op.NumOutputs(); want != nOutputs {
		return nil, fmt.Errorf("%w: %s produces %d outputs, %d requested", ErrArityMismatch, op.Name(), want, nOutputs)
	}

	specs, err := op.Setup(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s setup: %w", ErrShape, op.Name(), err)
	}
	if len(specs) != nOutputs {
		return nil, fmt.Errorf("%w: %s setup described %d outputs, %d requested", ErrArityMismatch, op.Name(), len(specs), nOutputs)
	}
	data := make([]*tensor.RawTensor, nOutputs)
	for i, spec := range specs {
		data[i], err = tensor.NewRaw(spec.Shape, spec.DType)
		if err != nil {
			return nil, fmt.Errorf("%w: %s output %d: %w", ErrShape, op.Name(), i, err)
		}
	}

	// Validation done; mutate the graph.
	needGrad := false
	rank := 0
	for _, in := range inputs {
		in.addConsumer(fn)
		needGrad = needGrad || in.needGrad
		if in.parent != nil {
			rank = max(rank, in.parent.rank+1)
		}
	}

	fn.graph = g
	fn.rank = rank
	fn.seq = g.nextSeq()
	fn.inputs = append([]*Variable(nil), inputs...)
	fn.propagateDown = make([]bool, len(inputs))
	for i, in := range inputs {
		fn.propagateDown[i] = in.needGrad
	}

	fn.outputs = make([]*Variable, nOutputs)
	for i := range fn.outputs {
		fn.outputs[i] = &Variable{
			graph:    g,
			data:     data[i],
			needGrad: needGrad,
			rank:     rank,
			parent:   fn,
		}
	}

	g.logger.Debug("function connected",
		slog.String("graph", g.name),
		slog.String("function", fn.String()),
		slog.Int("rank", rank),
		slog.Int("inputs", len(inputs)),
		slog.Int("outputs", nOutputs),
	)

	return fn.Outputs(), nil
}
