package tensor

import (
	"fmt"
	"math"
)

// Reduction selects how per-example losses are combined.
type Reduction int

const (
	// ReductionMean averages per-example losses into a one-element tensor.
	ReductionMean Reduction = iota
	// ReductionNone keeps one loss per example.
	ReductionNone
)

const lossEps = 1e-7

// CrossEntropyOp records a softmax cross-entropy between logits and integer
// class labels.
type CrossEntropyOp struct {
	logits    *Tensor
	labels    *Tensor
	softmax   []float32
	reduction Reduction
}

func (op *CrossEntropyOp) Inputs() []*Tensor { return []*Tensor{op.logits, op.labels} }

func (op *CrossEntropyOp) Backward(g *Tensor) ([]*Tensor, error) {
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	labels, err := op.labels.Int32Data()
	if err != nil {
		return nil, err
	}
	batch := op.logits.Shape[0]
	classes := op.logits.Shape[1]
	out := make([]float32, batch*classes)
	for i := 0; i < batch; i++ {
		scale := gd[0] / float32(batch)
		if op.reduction == ReductionNone {
			scale = gd[i]
		}
		for c := 0; c < classes; c++ {
			v := op.softmax[i*classes+c]
			if int32(c) == labels[i] {
				v -= 1
			}
			out[i*classes+c] = v * scale
		}
	}
	grad, err := NewTensor(op.logits.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad, nil}, nil
}

// CrossEntropyAutograd computes softmax cross-entropy between logits
// ([batch, classes]) and Int32 labels ([batch]). With ReductionMean the
// result is a one-element tensor, with ReductionNone a [batch] tensor.
func CrossEntropyAutograd(logits, labels *Tensor, reduction Reduction) (*Tensor, error) {
	if logits.Dims() != 2 {
		return nil, fmt.Errorf("logits must be 2-D, got %v", logits.Shape)
	}
	data, err := logits.Float32Data()
	if err != nil {
		return nil, err
	}
	labelData, err := labels.Int32Data()
	if err != nil {
		return nil, err
	}
	batch, classes := logits.Shape[0], logits.Shape[1]
	if len(labelData) != batch {
		return nil, fmt.Errorf("got %d labels for batch of %d", len(labelData), batch)
	}

	softmax := make([]float32, batch*classes)
	losses := make([]float32, batch)
	for i := 0; i < batch; i++ {
		row := data[i*classes : (i+1)*classes]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for c, v := range row {
			e := math.Exp(float64(v - maxV))
			softmax[i*classes+c] = float32(e)
			sum += e
		}
		for c := range row {
			softmax[i*classes+c] /= float32(sum)
		}
		label := labelData[i]
		if label < 0 || int(label) >= classes {
			return nil, fmt.Errorf("label %d out of range for %d classes", label, classes)
		}
		logSumExp := float64(maxV) + math.Log(sum)
		losses[i] = float32(logSumExp - float64(row[label]))
	}

	op := &CrossEntropyOp{logits: logits, labels: labels, softmax: softmax, reduction: reduction}
	var out *Tensor
	if reduction == ReductionMean {
		var total float64
		for _, l := range losses {
			total += float64(l)
		}
		out, err = NewTensor([]int{1}, Float32, logits.Device, []float32{float32(total / float64(batch))})
	} else {
		out, err = NewTensor([]int{batch}, Float32, logits.Device, losses)
	}
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

// BCEOp records a binary cross-entropy between probabilities and targets.
type BCEOp struct {
	probs     *Tensor
	targets   *Tensor
	reduction Reduction
}

func (op *BCEOp) Inputs() []*Tensor { return []*Tensor{op.probs, op.targets} }

func (op *BCEOp) Backward(g *Tensor) ([]*Tensor, error) {
	gd, err := g.Float32Data()
	if err != nil {
		return nil, err
	}
	p, err := op.probs.Float32Data()
	if err != nil {
		return nil, err
	}
	t, err := op.targets.Float32Data()
	if err != nil {
		return nil, err
	}
	n := len(p)
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		pc := clampProb(p[i])
		scale := gd[0] / float32(n)
		if op.reduction == ReductionNone {
			scale = gd[i]
		}
		out[i] = (pc - t[i]) / (pc * (1 - pc)) * scale
	}
	grad, err := NewTensor(op.probs.Shape, Float32, g.Device, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad, nil}, nil
}

// BCEAutograd computes binary cross-entropy between probabilities and targets
// of the same shape. Probabilities are clamped away from 0 and 1 for
// numerical stability. Gradients flow to the probabilities only.
func BCEAutograd(probs, targets *Tensor, reduction Reduction) (*Tensor, error) {
	p, err := probs.Float32Data()
	if err != nil {
		return nil, err
	}
	t, err := targets.Float32Data()
	if err != nil {
		return nil, err
	}
	if !shapesEqual(probs.Shape, targets.Shape) {
		return nil, fmt.Errorf("probability shape %v does not match target shape %v", probs.Shape, targets.Shape)
	}

	losses := make([]float32, len(p))
	for i := range p {
		pc := float64(clampProb(p[i]))
		ti := float64(t[i])
		losses[i] = float32(-(ti*math.Log(pc) + (1-ti)*math.Log(1-pc)))
	}

	op := &BCEOp{probs: probs, targets: targets, reduction: reduction}
	var out *Tensor
	if reduction == ReductionMean {
		var total float64
		for _, l := range losses {
			total += float64(l)
		}
		out, err = NewTensor([]int{1}, Float32, probs.Device, []float32{float32(total / float64(len(losses)))})
	} else {
		out, err = NewTensor(probs.Shape, Float32, probs.Device, losses)
	}
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

func clampProb(p float32) float32 {
	if p < lossEps {
		return lossEps
	}
	if p > 1-lossEps {
		return 1 - lossEps
	}
	return p
}
