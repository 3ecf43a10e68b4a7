package autodiff

import "fmt"

// Function is an operation node: an Operation together with its ordered
// inputs and outputs. It is immutable once connected.
type Function struct {
	op    Operation
	graph *Graph

	inputs        []*Variable
	outputs       []*Variable
	propagateDown []bool // propagateDown[i] == inputs[i].NeedGrad()

	rank int   // Longest path from a source, fixed at Connect
	seq  int64 // Connection order within the graph, 0 until connected
}

// NewFunction creates an unconnected Function shell for op.
func NewFunction(op Operation) *Function {
	return &Function{op: op}
}

// Operation returns the wrapped descriptor.
func (f *Function) Operation() Operation {
	return f.op
}

// Name returns the operation name.
func (f *Function) Name() string {
	return f.op.Name()
}

// String implements fmt.Stringer.
func (f *Function) String() string {
	return fmt.Sprintf("%s#%d", f.op.Name(), f.seq)
}

// Rank returns the longest-path distance from a graph source.
func (f *Function) Rank() int {
	return f.rank
}

// Seq returns the connection sequence number (1-based), 0 if unconnected.
func (f *Function) Seq() int64 {
	return f.seq
}

// Connected reports whether Connect has wired this function.
func (f *Function) Connected() bool {
	return f.graph != nil
}

// Inputs returns a copy of the input variables.
func (f *Function) Inputs() []*Variable {
	return append([]*Variable(nil), f.inputs...)
}

// Outputs returns a copy of the output variables.
func (f *Function) Outputs() []*Variable {
	return append([]*Variable(nil), f.outputs...)
}

// PropagateDown returns a copy of the per-input propagate flags.
func (f *Function) PropagateDown() []bool {
	return append([]bool(nil), f.propagateDown...)
}

// Cleanup invokes the operation's cleanup hook.
func (f *Function) Cleanup() {
	f.op.Cleanup()
}

// distinctInputs returns inputs with duplicates removed, first occurrence kept.
func (f *Function) distinctInputs() []*Variable {
	out := make([]*Variable, 0, len(f.inputs))
	for i, in := range f.inputs {
		dup := false
		for _, prev := range f.inputs[:i] {
			if prev == in {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, in)
		}
	}
	return out
}
