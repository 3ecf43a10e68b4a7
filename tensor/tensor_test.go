// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/cgraph/tensor"
)

// TestRawTensorAPI verifies RawTensor type alias exposes expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if !raw.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2 3]", raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		t.Errorf("DType() = %v, want Float32", raw.DType())
	}
	if raw.NumElements() != 6 {
		t.Errorf("NumElements() = %d, want 6", raw.NumElements())
	}
}

// TestConstructors verifies the re-exported constructors.
func TestConstructors(t *testing.T) {
	ones, err := tensor.Ones(tensor.Shape{2}, tensor.Float64)
	if err != nil {
		t.Fatalf("Ones failed: %v", err)
	}
	vals, err := tensor.FromFloat64([]float64{1, 2}, tensor.Shape{2})
	if err != nil {
		t.Fatalf("FromFloat64 failed: %v", err)
	}
	if err := vals.AddInPlace(ones); err != nil {
		t.Fatalf("AddInPlace failed: %v", err)
	}
	if got := vals.AsFloat64(); got[0] != 2 || got[1] != 3 {
		t.Errorf("AddInPlace = %v, want [2 3]", got)
	}

	if _, err := tensor.FromFloat32([]float32{1}, tensor.Shape{2}); err == nil {
		t.Error("expected length mismatch error")
	}
}
