package tensor

import (
	"math"
	"testing"
)

func TestCrossEntropyUniformLogits(t *testing.T) {
	logits := paramFrom(t, []int{2, 2}, []float32{0, 0, 0, 0})
	labels, err := NewTensor([]int{2}, Int32, CPU, []int32{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	loss, err := CrossEntropyAutograd(logits, labels, ReductionMean)
	if err != nil {
		t.Fatal(err)
	}
	v, err := loss.Item()
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(v, math.Log(2), 1e-5) {
		t.Errorf("loss = %v, want ln(2)", v)
	}
	if err := loss.Backward(); err != nil {
		t.Fatal(err)
	}
	g := gradData(t, logits)
	// softmax is uniform 0.5; grad = (p - onehot) / batch.
	want := []float32{-0.25, 0.25, 0.25, -0.25}
	for i, w := range want {
		if !approxEqual(float64(g[i]), float64(w), 1e-6) {
			t.Errorf("grad[%d] = %v, want %v", i, g[i], w)
		}
	}
}

func TestCrossEntropyConfidentPrediction(t *testing.T) {
	logits := paramFrom(t, []int{1, 3}, []float32{10, 0, 0})
	labels, err := NewTensor([]int{1}, Int32, CPU, []int32{0})
	if err != nil {
		t.Fatal(err)
	}
	loss, err := CrossEntropyAutograd(logits, labels, ReductionMean)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := loss.Item()
	if v > 0.001 {
		t.Errorf("confident correct prediction loss = %v, want near 0", v)
	}
}

func TestCrossEntropyPerExample(t *testing.T) {
	logits := tensorFrom(t, []int{2, 2}, []float32{0, 0, 5, -5})
	labels, err := NewTensor([]int{2}, Int32, CPU, []int32{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	loss, err := CrossEntropyAutograd(logits, labels, ReductionNone)
	if err != nil {
		t.Fatal(err)
	}
	if !shapesEqual(loss.Shape, []int{2}) {
		t.Fatalf("loss shape = %v, want [2]", loss.Shape)
	}
	data, _ := loss.Float32Data()
	if !approxEqual(float64(data[0]), math.Log(2), 1e-5) {
		t.Errorf("loss[0] = %v, want ln(2)", data[0])
	}
	// Example 2 predicts class 0 but the label is 1: loss near 10.
	if data[1] < 9 {
		t.Errorf("loss[1] = %v, want near 10", data[1])
	}
}

func TestCrossEntropyRejectsBadLabels(t *testing.T) {
	logits := tensorFrom(t, []int{1, 2}, []float32{0, 0})
	labels, err := NewTensor([]int{1}, Int32, CPU, []int32{7})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := CrossEntropyAutograd(logits, labels, ReductionMean); err == nil {
		t.Error("expected out-of-range label error")
	}
}

func TestBCEKnownValues(t *testing.T) {
	probs := tensorFrom(t, []int{2}, []float32{0.5, 0.9})
	targets := tensorFrom(t, []int{2}, []float32{1, 1})
	loss, err := BCEAutograd(probs, targets, ReductionMean)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := loss.Item()
	want := (-math.Log(0.5) - math.Log(0.9)) / 2
	if !approxEqual(v, want, 1e-5) {
		t.Errorf("loss = %v, want %v", v, want)
	}
}

func TestBCEGradient(t *testing.T) {
	probs := paramFrom(t, []int{1}, []float32{0.8})
	targets := tensorFrom(t, []int{1}, []float32{1})
	loss, err := BCEAutograd(probs, targets, ReductionMean)
	if err != nil {
		t.Fatal(err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatal(err)
	}
	// d/dp of -log(p) at 0.8 is -1/0.8 = -1.25.
	if g := gradData(t, probs)[0]; !approxEqual(float64(g), -1.25, 1e-4) {
		t.Errorf("grad = %v, want -1.25", g)
	}
}

func TestBCEClampsExtremes(t *testing.T) {
	probs := tensorFrom(t, []int{2}, []float32{0, 1})
	targets := tensorFrom(t, []int{2}, []float32{1, 0})
	loss, err := BCEAutograd(probs, targets, ReductionMean)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := loss.Item()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		t.Errorf("loss = %v, want finite", v)
	}
}

func TestBCEShapeMismatch(t *testing.T) {
	probs := tensorFrom(t, []int{2}, []float32{0.5, 0.5})
	targets := tensorFrom(t, []int{3}, []float32{1, 1, 1})
	if _, err := BCEAutograd(probs, targets, ReductionMean); err == nil {
		t.Error("expected shape mismatch error")
	}
}
