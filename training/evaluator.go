package training

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/sein-jang/rationale-net/tensor"
)

// BatchEval holds per-example evaluation outputs for one batch, in example
// order.
type BatchEval struct {
	TrueLabels     []int32
	PredLabels     []int32
	Losses         []float32 // generator + predictor + adversary loss per example
	SelectionRates []float32
	Variations     []float32
}

// EvaluateBatch scores one batch in inference mode: hard rationales, no
// gradient updates, per-example losses. If writer is non-nil every example's
// rationale is recorded through it.
func EvaluateBatch(m *Model, batch *Batch, cfg *Config, writer RationaleWriter) (*BatchEval, error) {
	m.Eval()

	tensors, err := ToTensors(cfg.Device(), batch.Tokens, batch.Lengths, batch.Labels)
	if err != nil {
		return nil, fmt.Errorf("staging batch: %w", err)
	}
	tokens, lengths, labels := tensors[0], tensors[1], tensors[2]

	mask, err := BuildMask(batch.Lengths, cfg.Device())
	if err != nil {
		return nil, err
	}

	encoded, rationale, err := m.Generator.Forward(tokens, lengths, cfg.Temperature, true)
	if err != nil {
		return nil, fmt.Errorf("generator forward: %w", err)
	}
	seqLen := rationale.Shape[1]

	logits, err := tensor.SelectAutograd(encoded, 1, seqLen)
	if err != nil {
		return nil, err
	}
	genLosses, err := tensor.CrossEntropyAutograd(logits, labels, tensor.ReductionNone)
	if err != nil {
		return nil, err
	}
	predLogits, err := m.Predictor.Forward(encoded, lengths, cfg.Temperature, true)
	if err != nil {
		return nil, err
	}
	predLosses, err := tensor.CrossEntropyAutograd(predLogits, labels, tensor.ReductionNone)
	if err != nil {
		return nil, err
	}
	advLogits, err := m.Adversary.Forward(encoded, lengths, cfg.Temperature, true)
	if err != nil {
		return nil, err
	}
	advLosses, err := tensor.CrossEntropyAutograd(advLogits, labels, tensor.ReductionNone)
	if err != nil {
		return nil, err
	}

	lg, err := HostFloats(genLosses)
	if err != nil {
		return nil, err
	}
	lp, err := HostFloats(predLosses)
	if err != nil {
		return nil, err
	}
	la, err := HostFloats(advLosses)
	if err != nil {
		return nil, err
	}
	logitData, err := HostFloats(logits)
	if err != nil {
		return nil, err
	}
	masked, err := tensor.Mul(rationale, mask)
	if err != nil {
		return nil, err
	}
	maskedData, err := masked.Float32Data()
	if err != nil {
		return nil, err
	}

	batchSize := batch.Size()
	out := &BatchEval{
		TrueLabels:     append([]int32(nil), batch.Labels...),
		PredLabels:     make([]int32, batchSize),
		Losses:         make([]float32, batchSize),
		SelectionRates: make([]float32, batchSize),
		Variations:     make([]float32, batchSize),
	}
	for i := 0; i < batchSize; i++ {
		out.Losses[i] = lg[i] + lp[i] + la[i]
		out.PredLabels[i] = argmaxRow(logitData, i, cfg.NumClasses)
		row := maskedData[i*seqLen : (i+1)*seqLen]
		n := int(batch.Lengths[i])
		length := float32(n)
		out.SelectionRates[i] = sum32(row) / length
		// Variation only counts transitions inside the example; the step
		// from the last in-length gate down to the padding is not one.
		out.Variations[i] = totalVariation(row[:n]) / length
	}

	if writer != nil {
		for i := 0; i < batchSize; i++ {
			rec := RationaleRecord{
				Dataset:   cfg.Dataset,
				Text:      batch.Texts[i],
				Predicted: out.PredLabels[i],
				Actual:    batch.Labels[i],
				Rationale: append([]float32(nil), maskedData[i*seqLen:i*seqLen+int(batch.Lengths[i])]...),
			}
			if err := writer.Write(rec); err != nil {
				return nil, fmt.Errorf("writing rationale record: %w", err)
			}
		}
	}
	return out, nil
}

// EvalResult is an epoch-level evaluation: the mean per-example loss and
// the aggregate classification metrics.
type EvalResult struct {
	Loss float64
	Metrics
}

// Evaluate runs the model over an entire split in inference mode and scores
// the concatenated per-example outputs. The split name only labels the log
// line.
func Evaluate(m *Model, data *TextDataset, cfg *Config, split string, writer RationaleWriter) (*EvalResult, error) {
	loader, err := NewBatchLoader(data, cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	var (
		trueLabels []int32
		predLabels []int32
		losses     []float64
	)
	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			return nil, err
		}
		be, err := EvaluateBatch(m, batch, cfg, writer)
		if err != nil {
			return nil, err
		}
		trueLabels = append(trueLabels, be.TrueLabels...)
		predLabels = append(predLabels, be.PredLabels...)
		for _, l := range be.Losses {
			losses = append(losses, float64(l))
		}
	}

	meanLoss := floats.Sum(losses) / float64(len(losses))
	metrics, err := Score(predLabels, trueLabels, cfg.NumClasses)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"split":     split,
		"loss":      meanLoss,
		"accuracy":  metrics.Accuracy,
		"precision": metrics.Precision,
		"recall":    metrics.Recall,
		"f1":        metrics.F1,
	}).Info("evaluation complete")

	return &EvalResult{Loss: meanLoss, Metrics: metrics}, nil
}

func argmaxRow(data []float32, row, width int) int32 {
	best := int32(0)
	bestV := data[row*width]
	for c := 1; c < width; c++ {
		if v := data[row*width+c]; v > bestV {
			bestV = v
			best = int32(c)
		}
	}
	return best
}

func sum32(xs []float32) float32 {
	var s float32
	for _, x := range xs {
		s += x
	}
	return s
}

func totalVariation(xs []float32) float32 {
	var s float32
	for i := 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		if d < 0 {
			d = -d
		}
		s += d
	}
	return s
}
