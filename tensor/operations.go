package tensor

import (
	"fmt"
	"math"
)

func checkDevice(a, b *Tensor) error {
	if a.Device != b.Device {
		return fmt.Errorf("tensors are on different devices: %s vs %s", a.Device, b.Device)
	}
	return nil
}

// binaryOp applies fn element-wise to two Float32 tensors with broadcasting.
func binaryOp(a, b *Tensor, fn func(x, y float32) float32) (*Tensor, error) {
	if err := checkDevice(a, b); err != nil {
		return nil, err
	}
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("element-wise ops require Float32 tensors, got %s and %s", a.DType, b.DType)
	}
	ea, eb, shape, err := broadcastPair(a, b)
	if err != nil {
		return nil, err
	}
	da, _ := ea.Float32Data()
	db, _ := eb.Float32Data()
	out := make([]float32, len(da))
	for i := range out {
		out[i] = fn(da[i], db[i])
	}
	return NewTensor(shape, Float32, a.Device, out)
}

// unaryOp applies fn element-wise to a Float32 tensor.
func unaryOp(t *Tensor, fn func(x float32) float32) (*Tensor, error) {
	data, err := t.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = fn(v)
	}
	return NewTensor(t.Shape, Float32, t.Device, out)
}

// Add returns a + b with broadcasting. No gradient tracking.
func Add(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x + y })
}

// Sub returns a - b with broadcasting. No gradient tracking.
func Sub(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x - y })
}

// Mul returns the element-wise product with broadcasting. No gradient tracking.
func Mul(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x * y })
}

// Div returns the element-wise quotient with broadcasting. No gradient tracking.
func Div(a, b *Tensor) (*Tensor, error) {
	return binaryOp(a, b, func(x, y float32) float32 { return x / y })
}

// Abs returns the element-wise absolute value. No gradient tracking.
func Abs(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 {
		if x < 0 {
			return -x
		}
		return x
	})
}

// ReLU returns max(0, x) element-wise. No gradient tracking.
func ReLU(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 {
		if x < 0 {
			return 0
		}
		return x
	})
}

// Sigmoid returns 1/(1+exp(-x)) element-wise. No gradient tracking.
func Sigmoid(t *Tensor) (*Tensor, error) {
	return unaryOp(t, sigmoid32)
}

// Exp returns e^x element-wise. No gradient tracking.
func Exp(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 {
		return float32(math.Exp(float64(x)))
	})
}

// Log returns the natural logarithm element-wise. No gradient tracking.
func Log(t *Tensor) (*Tensor, error) {
	return unaryOp(t, func(x float32) float32 {
		return float32(math.Log(float64(x)))
	})
}

func sigmoid32(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}
