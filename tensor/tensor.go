package tensor

import (
	"fmt"
)

// DType identifies the element type of a tensor.
type DType int

const (
	Float32 DType = iota
	Int32
)

func (dt DType) String() string {
	switch dt {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return fmt.Sprintf("DType(%d)", int(dt))
	}
}

// Size returns the element size in bytes.
func (dt DType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	default:
		return 0
	}
}

// DeviceType tags where a tensor logically lives. All computation in this
// package is host-resident; the accelerator tag exists so callers can thread
// a device preference through without every function taking a bool.
type DeviceType int

const (
	CPU DeviceType = iota
	Accelerator
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case Accelerator:
		return "Accelerator"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(d))
	}
}

// Operation is a node in the autograd graph. Backward receives the gradient
// of the loss with respect to the operation's output and returns one gradient
// per input, in the same order as Inputs. A nil entry means the corresponding
// input has no meaningful gradient (integer indices, class labels).
type Operation interface {
	Inputs() []*Tensor
	Backward(gradOutput *Tensor) ([]*Tensor, error)
}

// Tensor is an n-dimensional array with optional gradient tracking.
type Tensor struct {
	Shape    []int
	Strides  []int
	DType    DType
	Device   DeviceType
	Data     interface{} // []float32 or []int32
	NumElems int

	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("shape cannot be empty")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension %d at index %d: must be positive", dim, i)
		}
	}
	return nil
}

func calculateNumElements(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}

func calculateStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RequiresGrad reports whether gradients are tracked for this tensor.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// SetRequiresGrad toggles gradient tracking. Only Float32 tensors may track
// gradients.
func (t *Tensor) SetRequiresGrad(v bool) error {
	if v && t.DType != Float32 {
		return fmt.Errorf("gradients are only supported for Float32 tensors, got %s", t.DType)
	}
	t.requiresGrad = v
	return nil
}

// Grad returns the accumulated gradient, or nil if none has been computed.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// ZeroGrad clears the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	t.grad = nil
}

// Creator returns the operation that produced this tensor, or nil for leaves.
func (t *Tensor) Creator() Operation {
	return t.creator
}

// IsLeaf reports whether the tensor was created directly rather than by an
// operation.
func (t *Tensor) IsLeaf() bool {
	return t.creator == nil
}

// Dims returns the number of dimensions.
func (t *Tensor) Dims() int {
	return len(t.Shape)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, device=%s, requiresGrad=%v)",
		t.Shape, t.DType, t.Device, t.requiresGrad)
}

// attachCreator links an op result into the autograd graph when any input
// tracks gradients.
func attachCreator(result *Tensor, op Operation) {
	for _, in := range op.Inputs() {
		if in != nil && (in.requiresGrad || in.creator != nil) {
			result.creator = op
			result.requiresGrad = result.requiresGrad || in.requiresGrad || in.creator != nil
			return
		}
	}
}
