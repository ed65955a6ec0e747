package training

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/sein-jang/rationale-net/tensor"
)

// Config carries every knob of a training run. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	Dataset    string
	NumClasses int
	VocabSize  int
	EmbedDim   int
	HiddenDim  int

	BatchSize       int
	LearningRate    float64
	Temperature     float64
	SelectionWeight float64
	SelectionTarget float64
	VariationWeight float64
	Patience        int
	MaxEpochs       int

	UseDevice     bool
	InferenceOnly bool
	Save          bool
	Visualize     bool
	RunRoot       string
}

// DefaultConfig returns a configuration with sensible defaults; the dataset
// name, class count and vocabulary size still have to be filled in.
func DefaultConfig() Config {
	return Config{
		EmbedDim:        64,
		HiddenDim:       32,
		BatchSize:       32,
		LearningRate:    0.001,
		Temperature:     1.0,
		SelectionWeight: 0.01,
		SelectionTarget: 0,
		VariationWeight: 0.01,
		Patience:        5,
		RunRoot:         ".",
	}
}

// Validate checks the configuration for values that would make a run fail
// midway.
func (c *Config) Validate() error {
	switch {
	case c.Dataset == "":
		return fmt.Errorf("dataset name is required")
	case c.NumClasses < 2:
		return fmt.Errorf("need at least 2 classes, got %d", c.NumClasses)
	case c.VocabSize <= 0:
		return fmt.Errorf("vocabulary size must be positive, got %d", c.VocabSize)
	case c.EmbedDim <= 0 || c.HiddenDim <= 0:
		return fmt.Errorf("embedding and hidden dimensions must be positive")
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %f", c.LearningRate)
	case c.Temperature <= 0:
		return fmt.Errorf("temperature must be positive, got %f", c.Temperature)
	case c.SelectionTarget < 0 || c.SelectionTarget > 1:
		return fmt.Errorf("selection target must be in [0, 1], got %f", c.SelectionTarget)
	case c.Patience <= 0:
		return fmt.Errorf("patience must be positive, got %d", c.Patience)
	case c.MaxEpochs < 0:
		return fmt.Errorf("max epochs must be non-negative, got %d", c.MaxEpochs)
	}
	return nil
}

// Device returns the tensor device implied by the configuration.
func (c *Config) Device() tensor.DeviceType {
	if c.UseDevice {
		return tensor.Accelerator
	}
	return tensor.CPU
}

// Sidecar renders the configuration as sorted NAME=value lines, one field
// per line, with field names in upper snake case. The output is written next
// to saved models so a run can be reproduced.
func (c *Config) Sidecar() string {
	v := reflect.ValueOf(*c)
	t := v.Type()
	lines := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		lines = append(lines, fmt.Sprintf("%s=%v", upperSnake(t.Field(i).Name), v.Field(i).Interface()))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func upperSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
