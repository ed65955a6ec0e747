// Package checkpoints persists model weights: lightweight JSON snapshots
// taken during training, and a protobuf artifact for the final saved model.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sein-jang/rationale-net/tensor"
)

// WeightTensor is one parameter's values with enough metadata to restore it.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Snapshot is an intermediate training checkpoint: one network's weights at
// a given epoch plus the validation loss that earned it.
type Snapshot struct {
	Epoch   int            `json:"epoch"`
	Loss    float64        `json:"loss"`
	Weights []WeightTensor `json:"weights"`
}

// CaptureWeights copies parameters into named weight records. Names are
// <prefix>.<index> in parameter order.
func CaptureWeights(prefix string, params []*tensor.Tensor) ([]WeightTensor, error) {
	out := make([]WeightTensor, len(params))
	for i, p := range params {
		data, err := p.Float32Data()
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		out[i] = WeightTensor{
			Name:  fmt.Sprintf("%s.%d", prefix, i),
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float32(nil), data...),
		}
	}
	return out, nil
}

// RestoreWeights copies saved weights back into parameters, matching by
// position and validating shapes.
func RestoreWeights(weights []WeightTensor, params []*tensor.Tensor) error {
	if len(weights) != len(params) {
		return fmt.Errorf("checkpoint has %d weight tensors, model has %d parameters", len(weights), len(params))
	}
	for i, w := range weights {
		p := params[i]
		if !intsEqual(w.Shape, p.Shape) {
			return fmt.Errorf("weight %q has shape %v, parameter has %v", w.Name, w.Shape, p.Shape)
		}
		data, err := p.Float32Data()
		if err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		copy(data, w.Data)
	}
	return nil
}

// SaveSnapshot writes a snapshot as JSON, creating parent directories as
// needed.
func SaveSnapshot(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	return &snap, nil
}

func intsEqual(a, b []int) bool {
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
