package training

import (
	"testing"

	"github.com/sein-jang/rationale-net/tensor"
)

func newTestModel(t *testing.T, vocab, classes int) *Model {
	t.Helper()
	gen, err := NewTokenGenerator(vocab, 8, classes, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := NewGateClassifier(classes, 6, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	adv, err := NewGateClassifier(classes, 6, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	return &Model{Generator: gen, Predictor: pred, Adversary: adv}
}

func testBatchTensors(t *testing.T, batch *Batch) (tokens, lengths *tensor.Tensor) {
	t.Helper()
	tensors, err := ToTensors(tensor.CPU, batch.Tokens, batch.Lengths)
	if err != nil {
		t.Fatal(err)
	}
	return tensors[0], tensors[1]
}

func smallBatch() *Batch {
	return &Batch{
		Tokens:  [][]int32{{1, 2, 3, 0}, {4, 5, 6, 7}},
		Lengths: []int32{3, 4},
		Labels:  []int32{0, 1},
		Texts:   []string{"one two three", "four five six seven"},
	}
}

func TestGeneratorOutputShapes(t *testing.T) {
	m := newTestModel(t, 10, 2)
	tokens, lengths := testBatchTensors(t, smallBatch())

	encoded, rationale, err := m.Generator.Forward(tokens, lengths, 1.0, false)
	if err != nil {
		t.Fatal(err)
	}
	if encoded.Shape[0] != 2 || encoded.Shape[1] != 5 || encoded.Shape[2] != 2 {
		t.Errorf("encoded shape = %v, want [2 5 2]", encoded.Shape)
	}
	if rationale.Shape[0] != 2 || rationale.Shape[1] != 4 {
		t.Errorf("rationale shape = %v, want [2 4]", rationale.Shape)
	}
	data, err := rationale.Float32Data()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range data {
		if v < 0 || v > 1 {
			t.Errorf("rationale[%d] = %v outside [0, 1]", i, v)
		}
	}
}

func TestGeneratorHardModeBinarizes(t *testing.T) {
	m := newTestModel(t, 10, 2)
	tokens, lengths := testBatchTensors(t, smallBatch())

	_, rationale, err := m.Generator.Forward(tokens, lengths, 1.0, true)
	if err != nil {
		t.Fatal(err)
	}
	data, err := rationale.Float32Data()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range data {
		if v != 0 && v != 1 {
			t.Errorf("hard rationale[%d] = %v, want 0 or 1", i, v)
		}
	}
}

func TestGeneratorRejectsBadTemperature(t *testing.T) {
	m := newTestModel(t, 10, 2)
	tokens, lengths := testBatchTensors(t, smallBatch())
	if _, _, err := m.Generator.Forward(tokens, lengths, 0, false); err == nil {
		t.Error("expected error for zero temperature")
	}
}

func TestPredictorOutputShape(t *testing.T) {
	m := newTestModel(t, 10, 3)
	tokens, lengths := testBatchTensors(t, smallBatch())
	encoded, _, err := m.Generator.Forward(tokens, lengths, 1.0, false)
	if err != nil {
		t.Fatal(err)
	}
	logits, err := m.Predictor.Forward(encoded, lengths, 1.0, false)
	if err != nil {
		t.Fatal(err)
	}
	if logits.Shape[0] != 2 || logits.Shape[1] != 3 {
		t.Errorf("predictor logits shape = %v, want [2 3]", logits.Shape)
	}
}

func TestTrainEvalMode(t *testing.T) {
	m := newTestModel(t, 10, 2)
	if !m.Generator.IsTraining() {
		t.Error("networks should start in training mode")
	}
	m.Eval()
	if m.Generator.IsTraining() || m.Predictor.IsTraining() || m.Adversary.IsTraining() {
		t.Error("Eval did not switch every network")
	}
	m.Train()
	if !m.Adversary.IsTraining() {
		t.Error("Train did not switch back")
	}
}

func TestGeneratorGradientsReachAllParameters(t *testing.T) {
	m := newTestModel(t, 10, 2)
	batch := smallBatch()
	tokens, lengths := testBatchTensors(t, batch)
	labels, err := ToTensor(tensor.CPU, batch.Labels)
	if err != nil {
		t.Fatal(err)
	}

	encoded, _, err := m.Generator.Forward(tokens, lengths, 1.0, false)
	if err != nil {
		t.Fatal(err)
	}
	logits, err := tensor.SelectAutograd(encoded, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	loss, err := tensor.CrossEntropyAutograd(logits, labels, tensor.ReductionMean)
	if err != nil {
		t.Fatal(err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatal(err)
	}
	// The pooled classifier path must reach the embedding, scorer and
	// classifier head.
	gen := m.Generator.(*TokenGenerator)
	for i, p := range []*tensor.Tensor{gen.Embedding, gen.Scorer.Weight, gen.Classifier.Weight} {
		if p.Grad() == nil {
			t.Errorf("parameter %d received no gradient", i)
		}
	}
}

func TestLinearForward(t *testing.T) {
	l := &Linear{}
	var err error
	l.Weight, err = tensor.NewTensor([]int{2, 2}, tensor.Float32, tensor.CPU, []float32{1, 0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	l.Bias, err = tensor.NewTensor([]int{2}, tensor.Float32, tensor.CPU, []float32{10, 20})
	if err != nil {
		t.Fatal(err)
	}
	x, err := tensor.NewTensor([]int{1, 2}, tensor.Float32, tensor.CPU, []float32{3, 4})
	if err != nil {
		t.Fatal(err)
	}
	y, err := l.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := y.Float32Data()
	if data[0] != 13 || data[1] != 24 {
		t.Errorf("linear output = %v, want [13 24]", data)
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := NewTokenGenerator(0, 8, 2, tensor.CPU); err == nil {
		t.Error("expected error for empty vocabulary")
	}
	if _, err := NewTokenGenerator(10, 8, 1, tensor.CPU); err == nil {
		t.Error("expected error for single class")
	}
	if _, err := NewGateClassifier(2, 0, tensor.CPU); err == nil {
		t.Error("expected error for zero hidden width")
	}
}
