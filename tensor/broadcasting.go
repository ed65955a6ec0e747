package tensor

import "fmt"

// BroadcastShapes computes the result shape of broadcasting two shapes
// together following the usual trailing-dimension rules.
func BroadcastShapes(a, b []int) ([]int, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i >= n-len(a) {
			da = a[i-(n-len(a))]
		}
		if i >= n-len(b) {
			db = b[i-(n-len(b))]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, nil
}

// BroadcastTensor materializes t expanded to the target shape.
func BroadcastTensor(t *Tensor, target []int) (*Tensor, error) {
	if shapesEqual(t.Shape, target) {
		return t, nil
	}
	check, err := BroadcastShapes(t.Shape, target)
	if err != nil {
		return nil, err
	}
	if !shapesEqual(check, target) {
		return nil, fmt.Errorf("cannot broadcast shape %v to %v", t.Shape, target)
	}

	n := calculateNumElements(target)
	targetStrides := calculateStrides(target)

	// Strides for t aligned to the target rank, with zero stride on
	// broadcast dimensions.
	srcStrides := make([]int, len(target))
	offset := len(target) - len(t.Shape)
	for i := range target {
		if i < offset || t.Shape[i-offset] == 1 {
			srcStrides[i] = 0
		} else {
			srcStrides[i] = t.Strides[i-offset]
		}
	}

	mapIndex := func(flat int) int {
		src := 0
		for i := range target {
			idx := (flat / targetStrides[i]) % target[i]
			src += idx * srcStrides[i]
		}
		return src
	}

	var data interface{}
	switch src := t.Data.(type) {
	case []float32:
		out := make([]float32, n)
		for i := range out {
			out[i] = src[mapIndex(i)]
		}
		data = out
	case []int32:
		out := make([]int32, n)
		for i := range out {
			out[i] = src[mapIndex(i)]
		}
		data = out
	default:
		return nil, fmt.Errorf("unsupported data type %T", t.Data)
	}
	return NewTensor(target, t.DType, t.Device, data)
}

// broadcastPair expands two tensors to a common shape.
func broadcastPair(a, b *Tensor) (*Tensor, *Tensor, []int, error) {
	shape, err := BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, nil, nil, err
	}
	ea, err := BroadcastTensor(a, shape)
	if err != nil {
		return nil, nil, nil, err
	}
	eb, err := BroadcastTensor(b, shape)
	if err != nil {
		return nil, nil, nil, err
	}
	return ea, eb, shape, nil
}

// reduceGradientToShape sums a gradient down to the original input shape,
// undoing broadcast expansion.
func reduceGradientToShape(grad *Tensor, shape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, shape) {
		return grad, nil
	}
	src, err := grad.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, calculateNumElements(shape))

	gradStrides := calculateStrides(grad.Shape)
	dstStrides := calculateStrides(shape)
	offset := len(grad.Shape) - len(shape)

	for flat, v := range src {
		dst := 0
		for i := range shape {
			idx := (flat / gradStrides[i+offset]) % grad.Shape[i+offset]
			if shape[i] != 1 {
				dst += idx * dstStrides[i]
			}
		}
		out[dst] += v
	}
	return NewTensor(shape, Float32, grad.Device, out)
}
