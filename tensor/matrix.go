package tensor

import "fmt"

// Reshape returns a new tensor with the same data and a different shape.
// No gradient tracking; see ReshapeAutograd.
func (t *Tensor) Reshape(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if calculateNumElements(shape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, t.NumElems, shape)
	}
	return NewTensor(shape, t.DType, t.Device, t.Data)
}

// MatMul multiplies two 2-D Float32 tensors. No gradient tracking.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if err := checkDevice(a, b); err != nil {
		return nil, err
	}
	if a.Dims() != 2 || b.Dims() != 2 {
		return nil, fmt.Errorf("MatMul requires 2-D tensors, got %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("inner dimensions do not match: %v x %v", a.Shape, b.Shape)
	}
	da, err := a.Float32Data()
	if err != nil {
		return nil, err
	}
	db, err := b.Float32Data()
	if err != nil {
		return nil, err
	}
	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	out := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := da[i*k+p]
			if av == 0 {
				continue
			}
			row := db[p*n:]
			dst := out[i*n:]
			for j := 0; j < n; j++ {
				dst[j] += av * row[j]
			}
		}
	}
	return NewTensor([]int{m, n}, Float32, a.Device, out)
}

// Transpose swaps the two dimensions of a 2-D tensor. No gradient tracking.
func Transpose(t *Tensor) (*Tensor, error) {
	if t.Dims() != 2 {
		return nil, fmt.Errorf("Transpose requires a 2-D tensor, got %v", t.Shape)
	}
	data, err := t.Float32Data()
	if err != nil {
		return nil, err
	}
	rows, cols := t.Shape[0], t.Shape[1]
	out := make([]float32, len(data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = data[i*cols+j]
		}
	}
	return NewTensor([]int{cols, rows}, Float32, t.Device, out)
}

// SumDim sums over one dimension, removing it from the shape. Summing the
// only dimension yields a one-element tensor. No gradient tracking.
func SumDim(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= t.Dims() {
		return nil, fmt.Errorf("dimension %d out of range for shape %v", dim, t.Shape)
	}
	data, err := t.Float32Data()
	if err != nil {
		return nil, err
	}
	outShape := sumOutShape(t.Shape, dim)
	outer, size, inner := splitAt(t.Shape, dim)
	out := make([]float32, outer*inner)
	for o := 0; o < outer; o++ {
		for s := 0; s < size; s++ {
			base := (o*size + s) * inner
			dst := out[o*inner:]
			for in := 0; in < inner; in++ {
				dst[in] += data[base+in]
			}
		}
	}
	return NewTensor(outShape, Float32, t.Device, out)
}

// Narrow returns a copy of a slice of length elements along dim starting at
// start. No gradient tracking; see NarrowAutograd.
func Narrow(t *Tensor, dim, start, length int) (*Tensor, error) {
	if dim < 0 || dim >= t.Dims() {
		return nil, fmt.Errorf("dimension %d out of range for shape %v", dim, t.Shape)
	}
	if start < 0 || length <= 0 || start+length > t.Shape[dim] {
		return nil, fmt.Errorf("narrow range [%d, %d) out of bounds for dimension of size %d", start, start+length, t.Shape[dim])
	}
	outShape := append([]int(nil), t.Shape...)
	outShape[dim] = length
	outer, size, inner := splitAt(t.Shape, dim)

	switch data := t.Data.(type) {
	case []float32:
		out := make([]float32, outer*length*inner)
		narrowCopy(out, data, outer, size, inner, start, length)
		return NewTensor(outShape, Float32, t.Device, out)
	case []int32:
		out := make([]int32, outer*length*inner)
		narrowCopy(out, data, outer, size, inner, start, length)
		return NewTensor(outShape, Int32, t.Device, out)
	default:
		return nil, fmt.Errorf("unsupported data type %T", t.Data)
	}
}

// Select extracts the slice at index along dim, removing the dimension.
// No gradient tracking; see SelectAutograd.
func Select(t *Tensor, dim, index int) (*Tensor, error) {
	if dim < 0 || dim >= t.Dims() {
		return nil, fmt.Errorf("dimension %d out of range for shape %v", dim, t.Shape)
	}
	if index < 0 || index >= t.Shape[dim] {
		return nil, fmt.Errorf("index %d out of range for dimension of size %d", index, t.Shape[dim])
	}
	narrowed, err := Narrow(t, dim, index, 1)
	if err != nil {
		return nil, err
	}
	return narrowed.Reshape(sumOutShape(t.Shape, dim))
}

// Concat joins two tensors along dim. All other dimensions must match.
// No gradient tracking; see ConcatAutograd.
func Concat(a, b *Tensor, dim int) (*Tensor, error) {
	if err := checkDevice(a, b); err != nil {
		return nil, err
	}
	if a.DType != b.DType {
		return nil, fmt.Errorf("cannot concat %s and %s tensors", a.DType, b.DType)
	}
	if a.Dims() != b.Dims() || dim < 0 || dim >= a.Dims() {
		return nil, fmt.Errorf("invalid concat of %v and %v along dimension %d", a.Shape, b.Shape, dim)
	}
	for i := range a.Shape {
		if i != dim && a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("shapes %v and %v differ outside concat dimension %d", a.Shape, b.Shape, dim)
		}
	}
	outShape := append([]int(nil), a.Shape...)
	outShape[dim] = a.Shape[dim] + b.Shape[dim]
	outer, sizeA, inner := splitAt(a.Shape, dim)
	sizeB := b.Shape[dim]

	switch da := a.Data.(type) {
	case []float32:
		db := b.Data.([]float32)
		out := make([]float32, outer*(sizeA+sizeB)*inner)
		concatCopy(out, da, db, outer, sizeA, sizeB, inner)
		return NewTensor(outShape, Float32, a.Device, out)
	case []int32:
		db := b.Data.([]int32)
		out := make([]int32, outer*(sizeA+sizeB)*inner)
		concatCopy(out, da, db, outer, sizeA, sizeB, inner)
		return NewTensor(outShape, Int32, a.Device, out)
	default:
		return nil, fmt.Errorf("unsupported data type %T", a.Data)
	}
}

// splitAt factors a shape around dim into (product of leading dims, dim size,
// product of trailing dims).
func splitAt(shape []int, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}

// sumOutShape removes dim from shape, collapsing to [1] when it was the only
// dimension.
func sumOutShape(shape []int, dim int) []int {
	if len(shape) == 1 {
		return []int{1}
	}
	out := make([]int, 0, len(shape)-1)
	for i, s := range shape {
		if i != dim {
			out = append(out, s)
		}
	}
	return out
}

func narrowCopy[T float32 | int32](dst, src []T, outer, size, inner, start, length int) {
	for o := 0; o < outer; o++ {
		from := (o*size + start) * inner
		to := o * length * inner
		copy(dst[to:to+length*inner], src[from:from+length*inner])
	}
}

func concatCopy[T float32 | int32](dst, a, b []T, outer, sizeA, sizeB, inner int) {
	rowA := sizeA * inner
	rowB := sizeB * inner
	for o := 0; o < outer; o++ {
		to := o * (rowA + rowB)
		copy(dst[to:to+rowA], a[o*rowA:(o+1)*rowA])
		copy(dst[to+rowA:to+rowA+rowB], b[o*rowB:(o+1)*rowB])
	}
}
