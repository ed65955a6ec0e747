package tensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

var (
	rngMu     sync.Mutex
	globalRng = rand.New(rand.NewSource(42))
)

// SetRandomSeed reseeds the generator used by Random and RandomNormal.
func SetRandomSeed(seed int64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	globalRng = rand.New(rand.NewSource(seed))
}

// NewTensor creates a tensor from existing data. The data length must match
// the shape and the element type must match the dtype.
func NewTensor(shape []int, dtype DType, device DeviceType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	numElems := calculateNumElements(shape)

	switch d := data.(type) {
	case []float32:
		if dtype != Float32 {
			return nil, fmt.Errorf("data type []float32 does not match dtype %s", dtype)
		}
		if len(d) != numElems {
			return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), shape, numElems)
		}
	case []int32:
		if dtype != Int32 {
			return nil, fmt.Errorf("data type []int32 does not match dtype %s", dtype)
		}
		if len(d) != numElems {
			return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), shape, numElems)
		}
	default:
		return nil, fmt.Errorf("unsupported data type %T", data)
	}

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{
		Shape:    shapeCopy,
		Strides:  calculateStrides(shapeCopy),
		DType:    dtype,
		Device:   device,
		Data:     data,
		NumElems: numElems,
	}, nil
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		return NewTensor(shape, dtype, device, make([]float32, n))
	case Int32:
		return NewTensor(shape, dtype, device, make([]int32, n))
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

// Ones creates a tensor filled with ones.
func Ones(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	return Full(shape, dtype, device, 1)
}

// Full creates a tensor filled with the given value.
func Full(shape []int, dtype DType, device DeviceType, value float64) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		data := make([]float32, n)
		v := float32(value)
		for i := range data {
			data[i] = v
		}
		return NewTensor(shape, dtype, device, data)
	case Int32:
		data := make([]int32, n)
		v := int32(value)
		for i := range data {
			data[i] = v
		}
		return NewTensor(shape, dtype, device, data)
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

// FromScalar wraps a single value in a one-element Float32 tensor.
func FromScalar(value float64, device DeviceType) (*Tensor, error) {
	return NewTensor([]int{1}, Float32, device, []float32{float32(value)})
}

// Random creates a Float32 tensor with uniform values in [0, 1).
func Random(shape []int, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	data := make([]float32, n)
	rngMu.Lock()
	for i := range data {
		data[i] = globalRng.Float32()
	}
	rngMu.Unlock()
	return NewTensor(shape, Float32, device, data)
}

// RandomNormal creates a Float32 tensor with normally distributed values.
func RandomNormal(shape []int, device DeviceType, mean, stddev float64) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if stddev < 0 {
		return nil, fmt.Errorf("stddev must be non-negative, got %f", stddev)
	}
	n := calculateNumElements(shape)
	data := make([]float32, n)
	rngMu.Lock()
	for i := range data {
		data[i] = float32(globalRng.NormFloat64()*stddev + mean)
	}
	rngMu.Unlock()
	return NewTensor(shape, Float32, device, data)
}

// XavierUniform creates a weight tensor with Xavier/Glorot uniform
// initialization for the given fan-in and fan-out.
func XavierUniform(shape []int, device DeviceType, fanIn, fanOut int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if fanIn <= 0 || fanOut <= 0 {
		return nil, fmt.Errorf("fanIn and fanOut must be positive, got %d and %d", fanIn, fanOut)
	}
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	n := calculateNumElements(shape)
	data := make([]float32, n)
	rngMu.Lock()
	for i := range data {
		data[i] = float32((globalRng.Float64()*2 - 1) * limit)
	}
	rngMu.Unlock()
	return NewTensor(shape, Float32, device, data)
}

// OnesLike creates a ones tensor with the same shape, dtype and device as t.
func OnesLike(t *Tensor) (*Tensor, error) {
	return Ones(t.Shape, t.DType, t.Device)
}

// ZerosLike creates a zeros tensor with the same shape, dtype and device as t.
func ZerosLike(t *Tensor) (*Tensor, error) {
	return Zeros(t.Shape, t.DType, t.Device)
}
