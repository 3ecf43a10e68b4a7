// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package autodiff_test

import (
	"context"
	"testing"

	"github.com/born-ml/cgraph/autodiff"
	"github.com/born-ml/cgraph/tensor"
)

// TestPublicAPI_Square verifies d(x*x)/dx = 2x through the public surface.
func TestPublicAPI_Square(t *testing.T) {
	ctx := context.Background()
	g := autodiff.NewGraph(autodiff.WithName("square"))

	data, err := tensor.FromFloat32([]float32{3}, tensor.Shape{1})
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}
	x, err := g.NewVariableFrom(data, true)
	if err != nil {
		t.Fatalf("NewVariableFrom failed: %v", err)
	}

	y, err := g.Connect(autodiff.NewFunction(autodiff.NewMulOp()), []*autodiff.Variable{x, x}, 1)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := y[0].Forward(ctx); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if err := y[0].Backward(ctx, autodiff.BackwardConfig{ClearGrads: true}); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	if got := y[0].Data().AsFloat32()[0]; got != 9 {
		t.Errorf("y = %f, want 9", got)
	}
	if got := x.Grad().AsFloat32()[0]; got != 6 {
		t.Errorf("dy/dx = %f, want 6", got)
	}
}

// TestPublicAPI_DiamondOrder verifies the branch/merge backward order.
func TestPublicAPI_DiamondOrder(t *testing.T) {
	g := autodiff.NewGraph()
	var order []string
	fn := func(name string, n int) *autodiff.Function {
		cb := autodiff.NewCallback(name, n, 1)
		cb.BackwardFunc = func(_, _ []*autodiff.Variable, _, _ []bool) error {
			order = append(order, name)
			return nil
		}
		return autodiff.NewFunction(cb)
	}
	link := func(f *autodiff.Function, in ...*autodiff.Variable) *autodiff.Variable {
		out, err := g.Connect(f, in, 1)
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		return out[0]
	}

	x, err := g.NewVariable(tensor.Shape{1, 1, 1}, tensor.Float32, true)
	if err != nil {
		t.Fatalf("NewVariable failed: %v", err)
	}
	h1 := link(fn("A", 1), x)
	h2 := link(fn("B", 1), h1)
	h3 := link(fn("C", 1), h1)
	h4 := link(fn("D", 1), h2)
	h5 := link(fn("E", 2), h3, h4)

	if err := h5.Backward(context.Background(), autodiff.BackwardConfig{}); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	want := []string{"E", "D", "C", "B", "A"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}
