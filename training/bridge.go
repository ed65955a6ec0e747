package training

import (
	"fmt"

	"github.com/sein-jang/rationale-net/tensor"
)

// ToTensors converts host arrays into tensors on the given device, preserving
// order. Supported inputs: []float32, [][]float32, []int32 and [][]int32.
// Nested slices must be rectangular.
func ToTensors(device tensor.DeviceType, arrays ...interface{}) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(arrays))
	for i, a := range arrays {
		t, err := ToTensor(device, a)
		if err != nil {
			return nil, fmt.Errorf("array %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// ToTensor converts a single host array into a tensor on the given device.
func ToTensor(device tensor.DeviceType, array interface{}) (*tensor.Tensor, error) {
	switch a := array.(type) {
	case []float32:
		data := make([]float32, len(a))
		copy(data, a)
		return tensor.NewTensor([]int{len(a)}, tensor.Float32, device, data)
	case []int32:
		data := make([]int32, len(a))
		copy(data, a)
		return tensor.NewTensor([]int{len(a)}, tensor.Int32, device, data)
	case [][]float32:
		rows, cols, err := rectDims(len(a), func(i int) int { return len(a[i]) })
		if err != nil {
			return nil, err
		}
		data := make([]float32, rows*cols)
		for i, row := range a {
			copy(data[i*cols:], row)
		}
		return tensor.NewTensor([]int{rows, cols}, tensor.Float32, device, data)
	case [][]int32:
		rows, cols, err := rectDims(len(a), func(i int) int { return len(a[i]) })
		if err != nil {
			return nil, err
		}
		data := make([]int32, rows*cols)
		for i, row := range a {
			copy(data[i*cols:], row)
		}
		return tensor.NewTensor([]int{rows, cols}, tensor.Int32, device, data)
	default:
		return nil, fmt.Errorf("unsupported host array type %T", array)
	}
}

func rectDims(rows int, width func(int) int) (int, int, error) {
	if rows == 0 {
		return 0, 0, fmt.Errorf("empty array")
	}
	cols := width(0)
	for i := 1; i < rows; i++ {
		if width(i) != cols {
			return 0, 0, fmt.Errorf("ragged rows: row 0 has %d elements, row %d has %d", cols, i, width(i))
		}
	}
	return rows, cols, nil
}

// HostFloats copies a Float32 tensor's data back to the host, detached from
// the autograd graph.
func HostFloats(t *tensor.Tensor) ([]float32, error) {
	data, err := t.Detach().Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// HostInts copies an Int32 tensor's data back to the host.
func HostInts(t *tensor.Tensor) ([]int32, error) {
	data, err := t.Detach().Int32Data()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(data))
	copy(out, data)
	return out, nil
}

// ScalarOf extracts a float64 from a one-element tensor, or passes a plain
// numeric value through unchanged.
func ScalarOf(x interface{}) (float64, error) {
	switch v := x.(type) {
	case *tensor.Tensor:
		return v.Item()
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("cannot extract scalar from %T", x)
	}
}

// lengthsAsFloats converts an Int32 lengths tensor into a Float32 host-backed
// tensor for use as a divisor.
func lengthsAsFloats(lengths *tensor.Tensor) (*tensor.Tensor, error) {
	data, err := lengths.Int32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v)
	}
	return tensor.NewTensor(lengths.Shape, tensor.Float32, lengths.Device, out)
}
