package training

import (
	"fmt"

	"github.com/sein-jang/rationale-net/tensor"
)

// BuildMask creates a [batch, maxLen] Float32 mask from per-example sequence
// lengths. Row i holds lengths[i] leading ones followed by zeros, so padded
// positions contribute nothing when the mask is multiplied in. The mask is a
// constant: it never tracks gradients.
func BuildMask(lengths []int32, device tensor.DeviceType) (*tensor.Tensor, error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("no sequence lengths given")
	}
	maxLen := int32(0)
	for i, l := range lengths {
		if l <= 0 {
			return nil, fmt.Errorf("sequence %d has non-positive length %d", i, l)
		}
		if l > maxLen {
			maxLen = l
		}
	}
	return maskOfWidth(lengths, int(maxLen), device)
}

// maskOfWidth builds a leading-ones mask with an explicit row width, which
// may exceed the longest sequence when the batch is padded wider.
func maskOfWidth(lengths []int32, width int, device tensor.DeviceType) (*tensor.Tensor, error) {
	batch := len(lengths)
	data := make([]float32, batch*width)
	for i, l := range lengths {
		if int(l) > width {
			return nil, fmt.Errorf("sequence %d has length %d exceeding mask width %d", i, l, width)
		}
		row := data[i*width:]
		for j := int32(0); j < l; j++ {
			row[j] = 1
		}
	}
	return tensor.NewTensor([]int{batch, width}, tensor.Float32, device, data)
}
