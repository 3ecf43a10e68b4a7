// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the value and gradient storage used by autodiff
// variables: a contiguous float32/float64 buffer with its shape.
//
// Example:
//
//	raw, _ := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3})
//	grad := raw.Clone()
//	_ = grad.AddInPlace(raw) // grad = [2, 4, 6]
package tensor

import (
	"github.com/born-ml/cgraph/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType()
//   - Zero-copy data access via AsFloat32(), AsFloat64()
//   - In-place arithmetic used for gradient accumulation
type RawTensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents runtime type information for tensors.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// Errors returned by constructors and in-place arithmetic.
var (
	ErrShapeMismatch    = tensor.ErrShapeMismatch
	ErrDTypeMismatch    = tensor.ErrDTypeMismatch
	ErrUnsupportedDType = tensor.ErrUnsupportedDType
	ErrTooLarge         = tensor.ErrTooLarge
)

// NewRaw creates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 creates a Float32 tensor holding a copy of values.
func FromFloat32(values []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(values, shape)
}

// FromFloat64 creates a Float64 tensor holding a copy of values.
func FromFloat64(values []float64, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat64(values, shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.Ones(shape, dtype)
}
