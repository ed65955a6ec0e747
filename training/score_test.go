package training

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestScoreKnownValues(t *testing.T) {
	pred := []int32{0, 1, 1, 0}
	actual := []int32{0, 1, 0, 0}

	m, err := Score(pred, actual, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(m.Accuracy, 0.75) {
		t.Errorf("accuracy = %v, want 0.75", m.Accuracy)
	}
	// class 0: precision 2/2, recall 2/3; class 1: precision 1/2, recall 1/1.
	if !approx(m.Precision, 0.75) {
		t.Errorf("precision = %v, want 0.75", m.Precision)
	}
	if !approx(m.Recall, (2.0/3.0+1)/2) {
		t.Errorf("recall = %v, want %v", m.Recall, (2.0/3.0+1)/2)
	}
	// per-class F1: 0.8 and 2/3.
	if !approx(m.F1, (0.8+2.0/3.0)/2) {
		t.Errorf("f1 = %v, want %v", m.F1, (0.8+2.0/3.0)/2)
	}
}

func TestScorePerfectPredictions(t *testing.T) {
	labels := []int32{0, 1, 2, 1, 0}
	m, err := Score(labels, labels, 3)
	if err != nil {
		t.Fatal(err)
	}
	if m.Accuracy != 1 || m.Precision != 1 || m.Recall != 1 || m.F1 != 1 {
		t.Errorf("perfect predictions scored %+v", m)
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	pred := []int32{0, 1, 2, 2, 1}
	actual := []int32{0, 2, 2, 1, 1}
	first, err := Score(pred, actual, 3)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Score(pred, actual, 3)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("scoring twice differed: %+v vs %+v", first, second)
	}
}

func TestScoreUnpredictedClassCountsAsZero(t *testing.T) {
	// Class 1 never appears in predictions or labels.
	pred := []int32{0, 0}
	actual := []int32{0, 0}
	m, err := Score(pred, actual, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(m.Precision, 0.5) {
		t.Errorf("precision = %v, want 0.5", m.Precision)
	}
	if !approx(m.Recall, 0.5) {
		t.Errorf("recall = %v, want 0.5", m.Recall)
	}
}

func TestScoreInputValidation(t *testing.T) {
	if _, err := Score([]int32{0}, []int32{0, 1}, 2); err == nil {
		t.Error("expected error for length mismatch")
	}
	if _, err := Score(nil, nil, 2); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := Score([]int32{5}, []int32{0}, 2); err == nil {
		t.Error("expected error for out-of-range class")
	}
}

func TestConfusionMatrixCounts(t *testing.T) {
	cm, err := NewConfusionMatrix(2)
	if err != nil {
		t.Fatal(err)
	}
	pairs := [][2]int32{{0, 0}, {1, 1}, {1, 0}, {0, 0}}
	for _, pr := range pairs {
		if err := cm.Add(pr[0], pr[1]); err != nil {
			t.Fatal(err)
		}
	}
	if got := cm.Accuracy(); !approx(got, 0.75) {
		t.Errorf("accuracy = %v, want 0.75", got)
	}
	if _, err := NewConfusionMatrix(1); err == nil {
		t.Error("expected error for single-class matrix")
	}
}
