// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation over a
// dynamically built computation graph.
//
// Variables are data nodes, Functions wrap user-supplied Operations. Connect
// links a Function to its inputs and returns its outputs; Backward runs every
// reachable Function's backward step exactly once, producers after all of
// their consumers, so gradients at merge points are complete before they flow
// further back.
//
// Example:
//
//	import (
//	    "github.com/born-ml/cgraph/autodiff"
//	    "github.com/born-ml/cgraph/tensor"
//	)
//
//	func main() {
//	    g := autodiff.NewGraph()
//	    data, _ := tensor.FromFloat32([]float32{3}, tensor.Shape{1})
//	    x, _ := g.NewVariableFrom(data, true)
//
//	    y, _ := g.Connect(autodiff.NewFunction(autodiff.NewMulOp()), []*autodiff.Variable{x, x}, 1)
//	    _ = y[0].Forward(ctx)
//	    _ = y[0].Backward(ctx, autodiff.BackwardConfig{ClearGrads: true})
//	    fmt.Println(x.Grad().AsFloat32()) // [6]
//	}
package autodiff

import (
	"github.com/born-ml/cgraph/internal/autodiff"
	"github.com/born-ml/cgraph/internal/autodiff/ops"
)

// Graph owns variables, functions and backward-pass state.
type Graph = autodiff.Graph

// Variable is a data node holding a value and a gradient accumulator.
type Variable = autodiff.Variable

// Function is an operation node.
type Function = autodiff.Function

// Operation is the capability set a Function wraps.
type Operation = autodiff.Operation

// OutputSpec describes one output returned by Operation.Setup.
type OutputSpec = autodiff.OutputSpec

// BackwardConfig controls a backward pass.
type BackwardConfig = autodiff.BackwardConfig

// BackwardError reports a failure raised by an Operation's backward step.
type BackwardError = autodiff.BackwardError

// Option configures a Graph.
type Option = autodiff.Option

// VariadicInputs marks an Operation that accepts any input count.
const VariadicInputs = autodiff.VariadicInputs

// Errors.
var (
	ErrArityMismatch      = autodiff.ErrArityMismatch
	ErrShape              = autodiff.ErrShape
	ErrCyclicGraph        = autodiff.ErrCyclicGraph
	ErrBackwardExecution  = autodiff.ErrBackwardExecution
	ErrAlreadyConnected   = autodiff.ErrAlreadyConnected
	ErrForeignVariable    = autodiff.ErrForeignVariable
	ErrNilVariable        = autodiff.ErrNilVariable
	ErrNilFunction        = autodiff.ErrNilFunction
	ErrBackwardInProgress = autodiff.ErrBackwardInProgress
	ErrGradShape          = autodiff.ErrGradShape
)

// Graph options.
var (
	WithName           = autodiff.WithName
	WithLogger         = autodiff.WithLogger
	WithTracerProvider = autodiff.WithTracerProvider
	WithMeterProvider  = autodiff.WithMeterProvider
)

// NewGraph creates an empty graph.
func NewGraph(opts ...Option) *Graph {
	return autodiff.NewGraph(opts...)
}

// NewFunction creates an unconnected Function for op.
func NewFunction(op Operation) *Function {
	return autodiff.NewFunction(op)
}

// Built-in operations.
type (
	Callback   = ops.Callback
	IdentityOp = ops.IdentityOp
	AddOp      = ops.AddOp
	MulOp      = ops.MulOp
	ScaleOp    = ops.ScaleOp
	SplitOp    = ops.SplitOp
)

// NewCallback creates an Operation driven by closures.
func NewCallback(name string, numInputs, numOutputs int) *Callback {
	return ops.NewCallback(name, numInputs, numOutputs)
}

// NewIdentityOp creates an identity operation.
func NewIdentityOp() *IdentityOp { return ops.NewIdentityOp() }

// NewAddOp creates an element-wise addition.
func NewAddOp() *AddOp { return ops.NewAddOp() }

// NewMulOp creates an element-wise multiplication.
func NewMulOp() *MulOp { return ops.NewMulOp() }

// NewScaleOp creates a multiplication by a constant.
func NewScaleOp(factor float64) *ScaleOp { return ops.NewScaleOp(factor) }

// NewSplitOp creates a fan-out to n identical outputs.
func NewSplitOp(n int) *SplitOp { return ops.NewSplitOp(n) }
