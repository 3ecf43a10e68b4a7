// Package ops provides Operation descriptors for autodiff graphs.
//
// Each descriptor validates its inputs in Setup, computes values in Forward
// and writes input gradients in Backward, honoring the propagateDown and
// accumulate flags passed by the scheduler:
//   - Callback: closures for every step, used to observe scheduling
//   - IdentityOp: output = x
//   - AddOp: element-wise addition (d(a+b)/da = 1, d(a+b)/db = 1)
//   - MulOp: element-wise multiplication (d(a*b)/da = b, d(a*b)/db = a)
//   - ScaleOp: multiplication by a constant (d(c*x)/dx = c)
//   - SplitOp: one input fanned out to N identical outputs
package ops

import "github.com/born-ml/cgraph/internal/autodiff"

// base carries the name and arity shared by the built-in descriptors.
type base struct {
	name    string
	inputs  int
	outputs int
}

// Name returns the operation name.
func (b base) Name() string { return b.name }

// NumInputs returns the required input count.
func (b base) NumInputs() int { return b.inputs }

// NumOutputs returns the output count.
func (b base) NumOutputs() int { return b.outputs }

// Cleanup holds no resources.
func (base) Cleanup() {}

// Compile-time interface checks.
var (
	_ autodiff.Operation = (*Callback)(nil)
	_ autodiff.Operation = (*IdentityOp)(nil)
	_ autodiff.Operation = (*AddOp)(nil)
	_ autodiff.Operation = (*MulOp)(nil)
	_ autodiff.Operation = (*ScaleOp)(nil)
	_ autodiff.Operation = (*SplitOp)(nil)
)
