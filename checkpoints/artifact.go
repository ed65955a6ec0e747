package checkpoints

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Artifact is a complete saved model: every network's weights plus the
// configuration of the run that produced it. On disk it is a serialized
// protobuf Struct, so any protobuf-aware tool can inspect it without this
// package.
type Artifact struct {
	Networks map[string][]WeightTensor
	Config   map[string]string
	SavedAt  time.Time
}

// SaveArtifact serializes the artifact to path, creating parent directories
// as needed.
func SaveArtifact(path string, art *Artifact) error {
	networks := map[string]interface{}{}
	for name, weights := range art.Networks {
		entries := make([]interface{}, len(weights))
		for i, w := range weights {
			shape := make([]interface{}, len(w.Shape))
			for j, s := range w.Shape {
				shape[j] = float64(s)
			}
			data := make([]interface{}, len(w.Data))
			for j, v := range w.Data {
				data[j] = float64(v)
			}
			entries[i] = map[string]interface{}{
				"name":  w.Name,
				"shape": shape,
				"data":  data,
			}
		}
		networks[name] = entries
	}
	config := map[string]interface{}{}
	for k, v := range art.Config {
		config[k] = v
	}

	s, err := structpb.NewStruct(map[string]interface{}{
		"saved_at": art.SavedAt.UTC().Format(time.RFC3339),
		"config":   config,
		"networks": networks,
	})
	if err != nil {
		return fmt.Errorf("building artifact struct: %w", err)
	}
	raw, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact written by SaveArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	var s structpb.Struct
	if err := proto.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding artifact %s: %w", path, err)
	}
	fields := s.AsMap()

	art := &Artifact{
		Networks: map[string][]WeightTensor{},
		Config:   map[string]string{},
	}
	if ts, ok := fields["saved_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			art.SavedAt = parsed
		}
	}
	if cfg, ok := fields["config"].(map[string]interface{}); ok {
		for k, v := range cfg {
			sv, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("config entry %q is %T, want string", k, v)
			}
			art.Config[k] = sv
		}
	}
	networks, ok := fields["networks"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("artifact %s has no networks section", path)
	}
	for name, raw := range networks {
		entries, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("network %q is %T, want list", name, raw)
		}
		weights := make([]WeightTensor, len(entries))
		for i, e := range entries {
			m, ok := e.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("network %q entry %d is %T, want map", name, i, e)
			}
			w, err := weightFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("network %q entry %d: %w", name, i, err)
			}
			weights[i] = w
		}
		art.Networks[name] = weights
	}
	return art, nil
}

func weightFromMap(m map[string]interface{}) (WeightTensor, error) {
	var w WeightTensor
	name, ok := m["name"].(string)
	if !ok {
		return w, fmt.Errorf("missing name")
	}
	shapeRaw, ok := m["shape"].([]interface{})
	if !ok {
		return w, fmt.Errorf("missing shape")
	}
	dataRaw, ok := m["data"].([]interface{})
	if !ok {
		return w, fmt.Errorf("missing data")
	}
	w.Name = name
	w.Shape = make([]int, len(shapeRaw))
	for i, v := range shapeRaw {
		f, ok := v.(float64)
		if !ok {
			return w, fmt.Errorf("shape element %d is %T", i, v)
		}
		w.Shape[i] = int(f)
	}
	w.Data = make([]float32, len(dataRaw))
	for i, v := range dataRaw {
		f, ok := v.(float64)
		if !ok {
			return w, fmt.Errorf("data element %d is %T", i, v)
		}
		w.Data[i] = float32(f)
	}
	return w, nil
}
