package checkpoints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sein-jang/rationale-net/tensor"
)

func makeParams(t *testing.T, values ...[]float32) []*tensor.Tensor {
	t.Helper()
	out := make([]*tensor.Tensor, len(values))
	for i, v := range values {
		p, err := tensor.NewTensor([]int{len(v)}, tensor.Float32, tensor.CPU, append([]float32(nil), v...))
		if err != nil {
			t.Fatal(err)
		}
		out[i] = p
	}
	return out
}

func TestSnapshotRoundTrip(t *testing.T) {
	params := makeParams(t, []float32{1, 2, 3}, []float32{4, 5})
	weights, err := CaptureWeights("generator", params)
	if err != nil {
		t.Fatal(err)
	}
	if weights[0].Name != "generator.0" || weights[1].Name != "generator.1" {
		t.Errorf("weight names = %q, %q", weights[0].Name, weights[1].Name)
	}

	path := filepath.Join(t.TempDir(), "runs", "3.json")
	snap := &Snapshot{Epoch: 3, Loss: 0.42, Weights: weights}
	if err := SaveSnapshot(path, snap); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Epoch != 3 || loaded.Loss != 0.42 {
		t.Errorf("loaded epoch/loss = %d/%v", loaded.Epoch, loaded.Loss)
	}

	fresh := makeParams(t, []float32{0, 0, 0}, []float32{0, 0})
	if err := RestoreWeights(loaded.Weights, fresh); err != nil {
		t.Fatal(err)
	}
	data, _ := fresh[0].Float32Data()
	if data[0] != 1 || data[2] != 3 {
		t.Errorf("restored data = %v", data)
	}
}

func TestCaptureWeightsCopies(t *testing.T) {
	params := makeParams(t, []float32{1, 2})
	weights, err := CaptureWeights("net", params)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := params[0].Float32Data()
	data[0] = 99
	if weights[0].Data[0] != 1 {
		t.Error("captured weights share memory with parameters")
	}
}

func TestRestoreWeightsValidates(t *testing.T) {
	params := makeParams(t, []float32{1, 2})
	weights := []WeightTensor{{Name: "w", Shape: []int{3}, Data: []float32{1, 2, 3}}}
	if err := RestoreWeights(weights, params); err == nil {
		t.Error("expected shape mismatch error")
	}
	if err := RestoreWeights(nil, params); err == nil {
		t.Error("expected count mismatch error")
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadSnapshotCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	art := &Artifact{
		Networks: map[string][]WeightTensor{
			"generator": {{Name: "generator.0", Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}},
			"predictor": {{Name: "predictor.0", Shape: []int{2}, Data: []float32{5, 6}}},
		},
		Config: map[string]string{"DATASET": "news", "NUM_CLASSES": "2"},
	}
	path := filepath.Join(t.TempDir(), "run", "best")
	if err := SaveArtifact(path, art); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadArtifact(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Config["DATASET"] != "news" {
		t.Errorf("config DATASET = %q", loaded.Config["DATASET"])
	}
	gen := loaded.Networks["generator"]
	if len(gen) != 1 || gen[0].Name != "generator.0" {
		t.Fatalf("generator weights = %+v", gen)
	}
	if len(gen[0].Shape) != 2 || gen[0].Shape[0] != 2 {
		t.Errorf("generator shape = %v", gen[0].Shape)
	}
	if gen[0].Data[3] != 4 {
		t.Errorf("generator data = %v", gen[0].Data)
	}
	if len(loaded.Networks["predictor"]) != 1 {
		t.Error("predictor weights missing")
	}
}

func TestLoadArtifactRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0xfd}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArtifact(path); err == nil {
		t.Error("expected error for non-protobuf file")
	}
}
