package tensor

import (
	"errors"
	"fmt"
	"unsafe"
)

// Errors returned by constructors and in-place arithmetic.
var (
	ErrShapeMismatch    = errors.New("tensor shape mismatch")
	ErrDTypeMismatch    = errors.New("tensor dtype mismatch")
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrTooLarge         = errors.New("tensor too large")
)

// MaxByteSize bounds the buffer NewRaw allocates.
const MaxByteSize = 1 << 40

// RawTensor is the low-level tensor representation: a contiguous row-major
// buffer plus its shape and runtime dtype.
type RawTensor struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is zero-initialized.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}

	n := shape.NumElements()
	if n > MaxByteSize/dtype.Size() {
		return nil, fmt.Errorf("%w: %v %s exceeds %d bytes", ErrTooLarge, shape, dtype, MaxByteSize)
	}

	return &RawTensor{
		data:  make([]byte, n*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromFloat32 creates a Float32 tensor holding a copy of values.
func FromFloat32(values []float32, shape Shape) (*RawTensor, error) {
	r, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	if len(values) != r.NumElements() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(values), shape)
	}
	copy(r.AsFloat32(), values)
	return r, nil
}

// FromFloat64 creates a Float64 tensor holding a copy of values.
func FromFloat64(values []float64, shape Shape) (*RawTensor, error) {
	r, err := NewRaw(shape, Float64)
	if err != nil {
		return nil, err
	}
	if len(values) != r.NumElements() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(values), shape)
	}
	copy(r.AsFloat64(), values)
	return r, nil
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, dtype DataType) (*RawTensor, error) {
	r, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	r.Fill(1)
	return r, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Fill sets every element to v.
func (r *RawTensor) Fill(v float64) {
	switch r.dtype {
	case Float32:
		data := r.AsFloat32()
		for i := range data {
			data[i] = float32(v)
		}
	case Float64:
		data := r.AsFloat64()
		for i := range data {
			data[i] = v
		}
	}
}

// Zero sets every element to zero.
func (r *RawTensor) Zero() {
	clear(r.data)
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	return &RawTensor{
		data:  append([]byte(nil), r.data...),
		shape: r.shape.Clone(),
		dtype: r.dtype,
	}
}

// CopyFrom overwrites r with the contents of src.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if err := r.checkCompatible(src); err != nil {
		return err
	}
	copy(r.data, src.data)
	return nil
}

// AddInPlace computes r += src element-wise.
func (r *RawTensor) AddInPlace(src *RawTensor) error {
	if err := r.checkCompatible(src); err != nil {
		return err
	}
	switch r.dtype {
	case Float32:
		dst, s := r.AsFloat32(), src.AsFloat32()
		for i := range dst {
			dst[i] += s[i]
		}
	case Float64:
		dst, s := r.AsFloat64(), src.AsFloat64()
		for i := range dst {
			dst[i] += s[i]
		}
	}
	return nil
}

// MulInPlace computes r *= src element-wise.
func (r *RawTensor) MulInPlace(src *RawTensor) error {
	if err := r.checkCompatible(src); err != nil {
		return err
	}
	switch r.dtype {
	case Float32:
		dst, s := r.AsFloat32(), src.AsFloat32()
		for i := range dst {
			dst[i] *= s[i]
		}
	case Float64:
		dst, s := r.AsFloat64(), src.AsFloat64()
		for i := range dst {
			dst[i] *= s[i]
		}
	}
	return nil
}

// ScaleInPlace multiplies every element by s.
func (r *RawTensor) ScaleInPlace(s float64) {
	switch r.dtype {
	case Float32:
		data := r.AsFloat32()
		for i := range data {
			data[i] *= float32(s)
		}
	case Float64:
		data := r.AsFloat64()
		for i := range data {
			data[i] *= s
		}
	}
}

// checkCompatible verifies src has the same shape and dtype as r.
func (r *RawTensor) checkCompatible(src *RawTensor) error {
	if src.dtype != r.dtype {
		return fmt.Errorf("%w: %s vs %s", ErrDTypeMismatch, r.dtype, src.dtype)
	}
	if !src.shape.Equal(r.shape) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, r.shape, src.shape)
	}
	return nil
}
