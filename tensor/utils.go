package tensor

import "fmt"

// Clone returns a deep copy of the tensor. The copy is a leaf: it carries no
// creator and no gradient, but keeps the requiresGrad flag.
func (t *Tensor) Clone() (*Tensor, error) {
	var data interface{}
	switch d := t.Data.(type) {
	case []float32:
		c := make([]float32, len(d))
		copy(c, d)
		data = c
	case []int32:
		c := make([]int32, len(d))
		copy(c, d)
		data = c
	default:
		return nil, fmt.Errorf("unsupported data type %T", t.Data)
	}
	out, err := NewTensor(t.Shape, t.DType, t.Device, data)
	if err != nil {
		return nil, err
	}
	out.requiresGrad = t.requiresGrad
	return out, nil
}

// Detach returns a leaf tensor sharing this tensor's data but cut off from
// the autograd graph.
func (t *Tensor) Detach() *Tensor {
	out := &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  append([]int(nil), t.Strides...),
		DType:    t.DType,
		Device:   t.Device,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
	return out
}

// Item returns the value of a one-element tensor as float64.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item requires a one-element tensor, got %d elements", t.NumElems)
	}
	switch d := t.Data.(type) {
	case []float32:
		return float64(d[0]), nil
	case []int32:
		return float64(d[0]), nil
	default:
		return 0, fmt.Errorf("unsupported data type %T", t.Data)
	}
}

// Float32Data returns the underlying []float32 slice.
func (t *Tensor) Float32Data() ([]float32, error) {
	d, ok := t.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor is %s, not Float32", t.DType)
	}
	return d, nil
}

// Int32Data returns the underlying []int32 slice.
func (t *Tensor) Int32Data() ([]int32, error) {
	d, ok := t.Data.([]int32)
	if !ok {
		return nil, fmt.Errorf("tensor is %s, not Int32", t.DType)
	}
	return d, nil
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(indices ...int) (float64, error) {
	off, err := t.offset(indices)
	if err != nil {
		return 0, err
	}
	switch d := t.Data.(type) {
	case []float32:
		return float64(d[off]), nil
	case []int32:
		return float64(d[off]), nil
	default:
		return 0, fmt.Errorf("unsupported data type %T", t.Data)
	}
}

// SetAt assigns the element at the given multi-dimensional index.
func (t *Tensor) SetAt(value float64, indices ...int) error {
	off, err := t.offset(indices)
	if err != nil {
		return err
	}
	switch d := t.Data.(type) {
	case []float32:
		d[off] = float32(value)
	case []int32:
		d[off] = int32(value)
	default:
		return fmt.Errorf("unsupported data type %T", t.Data)
	}
	return nil
}

func (t *Tensor) offset(indices []int) (int, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d with size %d", idx, i, t.Shape[i])
		}
		off += idx * t.Strides[i]
	}
	return off, nil
}

// Equal reports whether two tensors have the same shape, dtype and data.
func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil || t.DType != other.DType || !shapesEqual(t.Shape, other.Shape) {
		return false
	}
	switch a := t.Data.(type) {
	case []float32:
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case []int32:
		b := other.Data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
