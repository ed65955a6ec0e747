package tensor

import "fmt"

// Backward computes gradients of this one-element tensor with respect to all
// leaf tensors that require gradients, walking the creator graph in reverse
// topological order. Gradients accumulate into existing leaf gradients, so
// calling Backward on several losses that share subgraphs sums their
// contributions; call ZeroGrad on the parameters to reset between steps.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("Backward requires a one-element tensor, got shape %v", t.Shape)
	}
	seed, err := Ones(t.Shape, Float32, t.Device)
	if err != nil {
		return err
	}
	return t.BackwardWith(seed)
}

// BackwardWith runs backpropagation from this tensor using the provided
// output gradient, which must match the tensor's shape.
func (t *Tensor) BackwardWith(seed *Tensor) error {
	if !shapesEqual(seed.Shape, t.Shape) {
		return fmt.Errorf("gradient shape %v does not match tensor shape %v", seed.Shape, t.Shape)
	}
	if !t.requiresGrad && t.creator == nil {
		return fmt.Errorf("tensor does not require gradients and has no creator")
	}

	order := topoOrder(t)
	grads := map[*Tensor]*Tensor{t: seed}

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g := grads[node]
		if g == nil {
			continue
		}
		if node.creator == nil {
			if node.requiresGrad {
				if err := node.accumulateGrad(g); err != nil {
					return err
				}
			}
			continue
		}
		inputGrads, err := node.creator.Backward(g)
		if err != nil {
			return err
		}
		inputs := node.creator.Inputs()
		if len(inputGrads) != len(inputs) {
			return fmt.Errorf("operation %T returned %d gradients for %d inputs", node.creator, len(inputGrads), len(inputs))
		}
		for j, in := range inputs {
			ig := inputGrads[j]
			if ig == nil || in == nil {
				continue
			}
			if prev := grads[in]; prev != nil {
				summed, err := Add(prev, ig)
				if err != nil {
					return err
				}
				grads[in] = summed
			} else {
				grads[in] = ig
			}
		}
	}
	return nil
}

func topoOrder(root *Tensor) []*Tensor {
	var order []*Tensor
	seen := map[*Tensor]bool{}
	var visit func(*Tensor)
	visit = func(n *Tensor) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		if n.creator != nil {
			for _, in := range n.creator.Inputs() {
				visit(in)
			}
		}
		order = append(order, n)
	}
	visit(root)
	return order
}

func (t *Tensor) accumulateGrad(g *Tensor) error {
	if !shapesEqual(g.Shape, t.Shape) {
		return fmt.Errorf("gradient shape %v does not match parameter shape %v", g.Shape, t.Shape)
	}
	if t.grad == nil {
		cloned, err := g.Clone()
		if err != nil {
			return err
		}
		cloned.requiresGrad = false
		t.grad = cloned
		return nil
	}
	dst, err := t.grad.Float32Data()
	if err != nil {
		return err
	}
	src, err := g.Float32Data()
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] += src[i]
	}
	return nil
}

// ---- element-wise ops ----

// AddOp records a broadcasting addition.
type AddOp struct{ a, b *Tensor }

func (op *AddOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *AddOp) Backward(g *Tensor) ([]*Tensor, error) {
	ga, err := reduceGradientToShape(g, op.a.Shape)
	if err != nil {
		return nil, err
	}
	gb, err := reduceGradientToShape(g, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{ga, gb}, nil
}

// AddAutograd returns a + b and records the operation for backpropagation.
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &AddOp{a: a, b: b})
	return out, nil
}

// SubOp records a broadcasting subtraction.
type SubOp struct{ a, b *Tensor }

func (op *SubOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *SubOp) Backward(g *Tensor) ([]*Tensor, error) {
	ga, err := reduceGradientToShape(g, op.a.Shape)
	if err != nil {
		return nil, err
	}
	neg, err := unaryOp(g, func(x float32) float32 { return -x })
	if err != nil {
		return nil, err
	}
	gb, err := reduceGradientToShape(neg, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{ga, gb}, nil
}

// SubAutograd returns a - b and records the operation for backpropagation.
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Sub(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &SubOp{a: a, b: b})
	return out, nil
}

// MulOp records a broadcasting element-wise product.
type MulOp struct{ a, b *Tensor }

func (op *MulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *MulOp) Backward(g *Tensor) ([]*Tensor, error) {
	gb, err := Mul(g, op.a)
	if err != nil {
		return nil, err
	}
	ga, err := Mul(g, op.b)
	if err != nil {
		return nil, err
	}
	ra, err := reduceGradientToShape(ga, op.a.Shape)
	if err != nil {
		return nil, err
	}
	rb, err := reduceGradientToShape(gb, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{ra, rb}, nil
}

// MulAutograd returns a * b and records the operation for backpropagation.
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &MulOp{a: a, b: b})
	return out, nil
}

// DivOp records a broadcasting element-wise quotient.
type DivOp struct{ a, b *Tensor }

func (op *DivOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *DivOp) Backward(g *Tensor) ([]*Tensor, error) {
	ga, err := Div(g, op.b)
	if err != nil {
		return nil, err
	}
	// d/db (a/b) = -a / b^2
	bsq, err := Mul(op.b, op.b)
	if err != nil {
		return nil, err
	}
	quot, err := Div(op.a, bsq)
	if err != nil {
		return nil, err
	}
	gb, err := Mul(g, quot)
	if err != nil {
		return nil, err
	}
	gb, err = unaryOpInto(gb, func(x float32) float32 { return -x })
	if err != nil {
		return nil, err
	}
	ra, err := reduceGradientToShape(ga, op.a.Shape)
	if err != nil {
		return nil, err
	}
	rb, err := reduceGradientToShape(gb, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{ra, rb}, nil
}

func unaryOpInto(t *Tensor, fn func(x float32) float32) (*Tensor, error) {
	data, err := t.Float32Data()
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		data[i] = fn(v)
	}
	return t, nil
}

// DivAutograd returns a / b and records the operation for backpropagation.
func DivAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Div(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &DivOp{a: a, b: b})
	return out, nil
}

// ReLUOp records a rectified linear activation.
type ReLUOp struct{ in *Tensor }

func (op *ReLUOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *ReLUOp) Backward(g *Tensor) ([]*Tensor, error) {
	x, err := op.in.Float32Data()
	if err != nil {
		return nil, err
	}
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(gd))
	for i := range out {
		if x[i] > 0 {
			out[i] = gd[i]
		}
	}
	grad, err := NewTensor(op.in.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// ReLUAutograd returns max(0, x) and records the operation.
func ReLUAutograd(t *Tensor) (*Tensor, error) {
	out, err := ReLU(t)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &ReLUOp{in: t})
	return out, nil
}

// SigmoidOp records a sigmoid activation; it keeps the output for the
// backward pass.
type SigmoidOp struct {
	in  *Tensor
	out *Tensor
}

func (op *SigmoidOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *SigmoidOp) Backward(g *Tensor) ([]*Tensor, error) {
	y, err := op.out.Float32Data()
	if err != nil {
		return nil, err
	}
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(gd))
	for i := range out {
		out[i] = gd[i] * y[i] * (1 - y[i])
	}
	grad, err := NewTensor(op.in.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SigmoidAutograd returns sigmoid(x) and records the operation.
func SigmoidAutograd(t *Tensor) (*Tensor, error) {
	out, err := Sigmoid(t)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &SigmoidOp{in: t, out: out})
	return out, nil
}

// AbsOp records an element-wise absolute value.
type AbsOp struct{ in *Tensor }

func (op *AbsOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *AbsOp) Backward(g *Tensor) ([]*Tensor, error) {
	x, err := op.in.Float32Data()
	if err != nil {
		return nil, err
	}
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(gd))
	for i := range out {
		switch {
		case x[i] > 0:
			out[i] = gd[i]
		case x[i] < 0:
			out[i] = -gd[i]
		}
	}
	grad, err := NewTensor(op.in.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// AbsAutograd returns |x| and records the operation. The subgradient at zero
// is zero.
func AbsAutograd(t *Tensor) (*Tensor, error) {
	out, err := Abs(t)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &AbsOp{in: t})
	return out, nil
}

// ---- shape and indexing ops ----

// MatMulOp records a 2-D matrix product.
type MatMulOp struct{ a, b *Tensor }

func (op *MatMulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *MatMulOp) Backward(g *Tensor) ([]*Tensor, error) {
	bt, err := Transpose(op.b)
	if err != nil {
		return nil, err
	}
	ga, err := MatMul(g, bt)
	if err != nil {
		return nil, err
	}
	at, err := Transpose(op.a)
	if err != nil {
		return nil, err
	}
	gb, err := MatMul(at, g)
	if err != nil {
		return nil, err
	}
	return []*Tensor{ga, gb}, nil
}

// MatMulAutograd returns a @ b and records the operation.
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := MatMul(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &MatMulOp{a: a, b: b})
	return out, nil
}

// ReshapeOp records a reshape.
type ReshapeOp struct{ in *Tensor }

func (op *ReshapeOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *ReshapeOp) Backward(g *Tensor) ([]*Tensor, error) {
	grad, err := g.Reshape(op.in.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// ReshapeAutograd returns a reshaped view and records the operation.
func ReshapeAutograd(t *Tensor, shape []int) (*Tensor, error) {
	out, err := t.Reshape(shape)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &ReshapeOp{in: t})
	return out, nil
}

// SumDimOp records a sum over one dimension.
type SumDimOp struct {
	in  *Tensor
	dim int
}

func (op *SumDimOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *SumDimOp) Backward(g *Tensor) ([]*Tensor, error) {
	// Insert the summed dimension back as size 1, then broadcast.
	withDim := make([]int, 0, len(op.in.Shape))
	for i := range op.in.Shape {
		if i == op.dim {
			withDim = append(withDim, 1)
		} else {
			withDim = append(withDim, op.in.Shape[i])
		}
	}
	reshaped, err := g.Reshape(withDim)
	if err != nil {
		return nil, err
	}
	grad, err := BroadcastTensor(reshaped, op.in.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SumDimAutograd sums over dim and records the operation.
func SumDimAutograd(t *Tensor, dim int) (*Tensor, error) {
	out, err := SumDim(t, dim)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &SumDimOp{in: t, dim: dim})
	return out, nil
}

// NarrowOp records a contiguous slice along one dimension.
type NarrowOp struct {
	in            *Tensor
	dim           int
	start, length int
}

func (op *NarrowOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *NarrowOp) Backward(g *Tensor) ([]*Tensor, error) {
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, op.in.NumElems)
	outer, size, inner := splitAt(op.in.Shape, op.dim)
	for o := 0; o < outer; o++ {
		to := (o*size + op.start) * inner
		from := o * op.length * inner
		copy(out[to:to+op.length*inner], gd[from:from+op.length*inner])
	}
	grad, err := NewTensor(op.in.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// NarrowAutograd slices length elements along dim starting at start and
// records the operation.
func NarrowAutograd(t *Tensor, dim, start, length int) (*Tensor, error) {
	out, err := Narrow(t, dim, start, length)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &NarrowOp{in: t, dim: dim, start: start, length: length})
	return out, nil
}

// SelectOp records an index along one dimension.
type SelectOp struct {
	in    *Tensor
	dim   int
	index int
}

func (op *SelectOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *SelectOp) Backward(g *Tensor) ([]*Tensor, error) {
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, op.in.NumElems)
	outer, size, inner := splitAt(op.in.Shape, op.dim)
	for o := 0; o < outer; o++ {
		to := (o*size + op.index) * inner
		copy(out[to:to+inner], gd[o*inner:(o+1)*inner])
	}
	grad, err := NewTensor(op.in.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SelectAutograd extracts the slice at index along dim, removing the
// dimension, and records the operation.
func SelectAutograd(t *Tensor, dim, index int) (*Tensor, error) {
	out, err := Select(t, dim, index)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &SelectOp{in: t, dim: dim, index: index})
	return out, nil
}

// ConcatOp records a concatenation of two tensors along one dimension.
type ConcatOp struct {
	a, b *Tensor
	dim  int
}

func (op *ConcatOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *ConcatOp) Backward(g *Tensor) ([]*Tensor, error) {
	ga, err := Narrow(g, op.dim, 0, op.a.Shape[op.dim])
	if err != nil {
		return nil, err
	}
	gb, err := Narrow(g, op.dim, op.a.Shape[op.dim], op.b.Shape[op.dim])
	if err != nil {
		return nil, err
	}
	return []*Tensor{ga, gb}, nil
}

// ConcatAutograd joins a and b along dim and records the operation.
func ConcatAutograd(a, b *Tensor, dim int) (*Tensor, error) {
	out, err := Concat(a, b, dim)
	if err != nil {
		return nil, err
	}
	attachCreator(out, &ConcatOp{a: a, b: b, dim: dim})
	return out, nil
}

// EmbeddingOp records a row lookup into an embedding table.
type EmbeddingOp struct {
	weight *Tensor
	ids    *Tensor
}

func (op *EmbeddingOp) Inputs() []*Tensor { return []*Tensor{op.weight, op.ids} }

func (op *EmbeddingOp) Backward(g *Tensor) ([]*Tensor, error) {
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	ids, err := op.ids.Int32Data()
	if err != nil {
		return nil, err
	}
	dim := op.weight.Shape[1]
	out := make([]float32, op.weight.NumElems)
	for i, id := range ids {
		row := out[int(id)*dim : (int(id)+1)*dim]
		src := gd[i*dim : (i+1)*dim]
		for j := range row {
			row[j] += src[j]
		}
	}
	grad, err := NewTensor(op.weight.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad, nil}, nil
}

// EmbeddingAutograd gathers rows of weight ([vocab, dim]) by the Int32 ids
// tensor and returns a tensor shaped ids.Shape + [dim]. Gradients flow to
// the weight table only.
func EmbeddingAutograd(weight, ids *Tensor) (*Tensor, error) {
	if weight.Dims() != 2 {
		return nil, fmt.Errorf("embedding weight must be 2-D, got %v", weight.Shape)
	}
	idData, err := ids.Int32Data()
	if err != nil {
		return nil, err
	}
	wData, err := weight.Float32Data()
	if err != nil {
		return nil, err
	}
	vocab, dim := weight.Shape[0], weight.Shape[1]
	out := make([]float32, len(idData)*dim)
	for i, id := range idData {
		if id < 0 || int(id) >= vocab {
			return nil, fmt.Errorf("token id %d out of range for vocabulary of size %d", id, vocab)
		}
		copy(out[i*dim:(i+1)*dim], wData[int(id)*dim:(int(id)+1)*dim])
	}
	outShape := append(append([]int(nil), ids.Shape...), dim)
	result, err := NewTensor(outShape, Float32, weight.Device, out)
	if err != nil {
		return nil, err
	}
	attachCreator(result, &EmbeddingOp{weight: weight, ids: ids})
	return result, nil
}
