package training

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ConfusionMatrix accumulates prediction counts for multi-class scoring.
// matrix[i][j] counts examples of true class i predicted as class j.
type ConfusionMatrix struct {
	NumClasses int
	matrix     [][]int
	total      int
}

// NewConfusionMatrix creates an empty confusion matrix for the given number
// of classes.
func NewConfusionMatrix(numClasses int) (*ConfusionMatrix, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}
	m := make([][]int, numClasses)
	for i := range m {
		m[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{NumClasses: numClasses, matrix: m}, nil
}

// Add records one prediction.
func (cm *ConfusionMatrix) Add(predicted, actual int32) error {
	if predicted < 0 || int(predicted) >= cm.NumClasses {
		return fmt.Errorf("predicted class %d out of range [0, %d)", predicted, cm.NumClasses)
	}
	if actual < 0 || int(actual) >= cm.NumClasses {
		return fmt.Errorf("actual class %d out of range [0, %d)", actual, cm.NumClasses)
	}
	cm.matrix[actual][predicted]++
	cm.total++
	return nil
}

// Accuracy returns the fraction of correct predictions.
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.total == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.matrix[i][i]
	}
	return float64(correct) / float64(cm.total)
}

func (cm *ConfusionMatrix) classCounts(class int) (tp, fp, fn int) {
	tp = cm.matrix[class][class]
	for other := 0; other < cm.NumClasses; other++ {
		if other == class {
			continue
		}
		fp += cm.matrix[other][class]
		fn += cm.matrix[class][other]
	}
	return tp, fp, fn
}

// classPrecision returns the precision for one class, and whether it is
// defined (the class was predicted at least once).
func (cm *ConfusionMatrix) classPrecision(class int) (float64, bool) {
	tp, fp, _ := cm.classCounts(class)
	if tp+fp == 0 {
		return 0, false
	}
	return float64(tp) / float64(tp+fp), true
}

// classRecall returns the recall for one class, and whether it is defined
// (the class appears in the true labels).
func (cm *ConfusionMatrix) classRecall(class int) (float64, bool) {
	tp, _, fn := cm.classCounts(class)
	if tp+fn == 0 {
		return 0, false
	}
	return float64(tp) / float64(tp+fn), true
}

// MacroPrecision averages per-class precision, counting undefined classes
// as zero.
func (cm *ConfusionMatrix) MacroPrecision() float64 {
	var sum float64
	for c := 0; c < cm.NumClasses; c++ {
		p, ok := cm.classPrecision(c)
		if !ok {
			log.Warnf("precision undefined for class %d: no predictions; counting as 0", c)
		}
		sum += p
	}
	return sum / float64(cm.NumClasses)
}

// MacroRecall averages per-class recall, counting undefined classes as zero.
func (cm *ConfusionMatrix) MacroRecall() float64 {
	var sum float64
	for c := 0; c < cm.NumClasses; c++ {
		r, ok := cm.classRecall(c)
		if !ok {
			log.Warnf("recall undefined for class %d: no true examples; counting as 0", c)
		}
		sum += r
	}
	return sum / float64(cm.NumClasses)
}

// MacroF1 averages per-class F1 scores. A class with zero precision and
// recall contributes zero.
func (cm *ConfusionMatrix) MacroF1() float64 {
	var sum float64
	for c := 0; c < cm.NumClasses; c++ {
		p, _ := cm.classPrecision(c)
		r, _ := cm.classRecall(c)
		if p+r > 0 {
			sum += 2 * p * r / (p + r)
		}
	}
	return sum / float64(cm.NumClasses)
}

// Metrics bundles the scores computed over a set of predictions.
type Metrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
}

// Score computes accuracy and macro-averaged precision, recall and F1 for
// the given predicted and true labels. Scoring is read-only: calling it
// repeatedly on the same inputs yields the same result.
func Score(predicted, actual []int32, numClasses int) (Metrics, error) {
	if len(predicted) != len(actual) {
		return Metrics{}, fmt.Errorf("got %d predictions for %d labels", len(predicted), len(actual))
	}
	if len(predicted) == 0 {
		return Metrics{}, fmt.Errorf("no predictions to score")
	}
	cm, err := NewConfusionMatrix(numClasses)
	if err != nil {
		return Metrics{}, err
	}
	for i := range predicted {
		if err := cm.Add(predicted[i], actual[i]); err != nil {
			return Metrics{}, err
		}
	}
	return Metrics{
		Accuracy:  cm.Accuracy(),
		Precision: cm.MacroPrecision(),
		Recall:    cm.MacroRecall(),
		F1:        cm.MacroF1(),
	}, nil
}
