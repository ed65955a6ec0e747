package training

import (
	"errors"
	"fmt"

	"github.com/sein-jang/rationale-net/tensor"
)

// ErrInferenceOnly is returned when a parameter update is attempted on a run
// configured for inference.
var ErrInferenceOnly = errors.New("model updates are disabled in inference mode")

// Optimizers holds one optimizer per network. Each network's updates must
// only ever go through its own optimizer.
type Optimizers struct {
	Generator Optimizer
	Predictor Optimizer
	Adversary Optimizer
}

// NewOptimizers creates an Adam optimizer for each of the model's networks.
func NewOptimizers(m *Model, lr float64) (*Optimizers, error) {
	g, err := NewAdam(m.Generator.Parameters(), lr)
	if err != nil {
		return nil, err
	}
	p, err := NewAdam(m.Predictor.Parameters(), lr)
	if err != nil {
		return nil, err
	}
	a, err := NewAdam(m.Adversary.Parameters(), lr)
	if err != nil {
		return nil, err
	}
	return &Optimizers{Generator: g, Predictor: p, Adversary: a}, nil
}

// TrainStats reports the loss terms of one training step.
type TrainStats struct {
	GeneratorLoss float64
	SelectionLoss float64
	VariationLoss float64
	PredictorLoss float64
	AdversaryLoss float64
}

// TrainBatch runs one adversarial update on a batch: the generator is
// updated first from its combined objective, then the predictor on the
// generator's output, then the adversary on the complement of that output.
// The three backward passes share the generator's forward graph; predictor
// and adversary gradients therefore also land on the generator's parameters,
// where the generator's zero-grad at the start of the next step discards
// them. Each optimizer clears only its own network's gradients.
func TrainBatch(m *Model, batch *Batch, opts *Optimizers, cfg *Config) (*TrainStats, error) {
	if cfg.InferenceOnly {
		return nil, ErrInferenceOnly
	}

	m.Generator.Train()
	opts.Generator.ZeroGrad()

	tensors, err := ToTensors(cfg.Device(), batch.Tokens, batch.Lengths, batch.Labels)
	if err != nil {
		return nil, fmt.Errorf("staging batch: %w", err)
	}
	tokens, lengths, labels := tensors[0], tensors[1], tensors[2]

	mask, err := BuildMask(batch.Lengths, cfg.Device())
	if err != nil {
		return nil, err
	}
	if mask.Shape[1] != tokens.Shape[1] {
		return nil, fmt.Errorf("mask width %d does not match token width %d", mask.Shape[1], tokens.Shape[1])
	}

	encoded, rationale, err := m.Generator.Forward(tokens, lengths, cfg.Temperature, false)
	if err != nil {
		return nil, fmt.Errorf("generator forward: %w", err)
	}
	seqLen := rationale.Shape[1]

	logits, err := tensor.SelectAutograd(encoded, 1, seqLen)
	if err != nil {
		return nil, err
	}
	genLoss, err := tensor.CrossEntropyAutograd(logits, labels, tensor.ReductionMean)
	if err != nil {
		return nil, fmt.Errorf("generator loss: %w", err)
	}

	masked, err := tensor.MulAutograd(rationale, mask)
	if err != nil {
		return nil, err
	}
	selLoss, err := selectionLoss(masked, lengths, cfg.SelectionTarget)
	if err != nil {
		return nil, fmt.Errorf("selection loss: %w", err)
	}
	varLoss, err := variationLoss(masked, mask, lengths)
	if err != nil {
		return nil, fmt.Errorf("variation loss: %w", err)
	}

	total, err := weightedSum(genLoss, selLoss, varLoss, cfg.SelectionWeight, cfg.VariationWeight)
	if err != nil {
		return nil, err
	}
	if err := total.Backward(); err != nil {
		return nil, fmt.Errorf("generator backward: %w", err)
	}
	if err := opts.Generator.Step(); err != nil {
		return nil, err
	}

	m.Predictor.Train()
	opts.Predictor.ZeroGrad()
	predLogits, err := m.Predictor.Forward(encoded, lengths, cfg.Temperature, false)
	if err != nil {
		return nil, fmt.Errorf("predictor forward: %w", err)
	}
	predLoss, err := tensor.CrossEntropyAutograd(predLogits, labels, tensor.ReductionMean)
	if err != nil {
		return nil, err
	}
	if err := predLoss.Backward(); err != nil {
		return nil, fmt.Errorf("predictor backward: %w", err)
	}
	if err := opts.Predictor.Step(); err != nil {
		return nil, err
	}

	m.Adversary.Train()
	opts.Adversary.ZeroGrad()
	complement, err := complementOf(encoded)
	if err != nil {
		return nil, err
	}
	advLogits, err := m.Adversary.Forward(complement, lengths, cfg.Temperature, false)
	if err != nil {
		return nil, fmt.Errorf("adversary forward: %w", err)
	}
	advLoss, err := tensor.CrossEntropyAutograd(advLogits, labels, tensor.ReductionMean)
	if err != nil {
		return nil, err
	}
	if err := advLoss.Backward(); err != nil {
		return nil, fmt.Errorf("adversary backward: %w", err)
	}
	if err := opts.Adversary.Step(); err != nil {
		return nil, err
	}

	stats := &TrainStats{}
	if stats.GeneratorLoss, err = ScalarOf(genLoss); err != nil {
		return nil, err
	}
	if stats.SelectionLoss, err = ScalarOf(selLoss); err != nil {
		return nil, err
	}
	if stats.VariationLoss, err = ScalarOf(varLoss); err != nil {
		return nil, err
	}
	if stats.PredictorLoss, err = ScalarOf(predLoss); err != nil {
		return nil, err
	}
	if stats.AdversaryLoss, err = ScalarOf(advLoss); err != nil {
		return nil, err
	}
	return stats, nil
}

// selectionLoss penalizes the length-normalized fraction of selected tokens
// against the target selection rate.
func selectionLoss(maskedRationale, lengths *tensor.Tensor, target float64) (*tensor.Tensor, error) {
	rate, err := selectionRate(maskedRationale, lengths)
	if err != nil {
		return nil, err
	}
	targets, err := tensor.Full(rate.Shape, tensor.Float32, rate.Device, target)
	if err != nil {
		return nil, err
	}
	return tensor.BCEAutograd(rate, targets, tensor.ReductionMean)
}

// selectionRate is the per-example sum of masked selection probabilities
// divided by the true sequence length.
func selectionRate(maskedRationale, lengths *tensor.Tensor) (*tensor.Tensor, error) {
	summed, err := tensor.SumDimAutograd(maskedRationale, 1)
	if err != nil {
		return nil, err
	}
	lensF, err := lengthsAsFloats(lengths)
	if err != nil {
		return nil, err
	}
	return tensor.DivAutograd(summed, lensF)
}

// variationLoss penalizes the length-normalized total variation between
// adjacent selection probabilities, pushing rationales toward contiguous
// spans. Single-token sequences have no adjacent pairs and contribute zero.
func variationLoss(maskedRationale, mask, lengths *tensor.Tensor) (*tensor.Tensor, error) {
	seqLen := maskedRationale.Shape[1]
	if seqLen < 2 {
		zero, err := tensor.Zeros([]int{1}, tensor.Float32, maskedRationale.Device)
		if err != nil {
			return nil, err
		}
		return zero, nil
	}
	right, err := tensor.NarrowAutograd(maskedRationale, 1, 1, seqLen-1)
	if err != nil {
		return nil, err
	}
	left, err := tensor.NarrowAutograd(maskedRationale, 1, 0, seqLen-1)
	if err != nil {
		return nil, err
	}
	diff, err := tensor.SubAutograd(right, left)
	if err != nil {
		return nil, err
	}
	diff, err = tensor.AbsAutograd(diff)
	if err != nil {
		return nil, err
	}
	maskTail, err := tensor.NarrowAutograd(mask, 1, 1, seqLen-1)
	if err != nil {
		return nil, err
	}
	diff, err = tensor.MulAutograd(diff, maskTail)
	if err != nil {
		return nil, err
	}
	rate, err := selectionRate(diff, lengths)
	if err != nil {
		return nil, err
	}
	zeros, err := tensor.Zeros(rate.Shape, tensor.Float32, rate.Device)
	if err != nil {
		return nil, err
	}
	return tensor.BCEAutograd(rate, zeros, tensor.ReductionMean)
}

func weightedSum(genLoss, selLoss, varLoss *tensor.Tensor, selWeight, varWeight float64) (*tensor.Tensor, error) {
	sw, err := tensor.FromScalar(selWeight, genLoss.Device)
	if err != nil {
		return nil, err
	}
	vw, err := tensor.FromScalar(varWeight, genLoss.Device)
	if err != nil {
		return nil, err
	}
	weightedSel, err := tensor.MulAutograd(selLoss, sw)
	if err != nil {
		return nil, err
	}
	weightedVar, err := tensor.MulAutograd(varLoss, vw)
	if err != nil {
		return nil, err
	}
	total, err := tensor.AddAutograd(genLoss, weightedSel)
	if err != nil {
		return nil, err
	}
	return tensor.AddAutograd(total, weightedVar)
}

// complementOf returns 1 - encoded, the view of the sequence with the
// highlighted channels inverted, which the adversary is trained on.
func complementOf(encoded *tensor.Tensor) (*tensor.Tensor, error) {
	ones, err := tensor.OnesLike(encoded)
	if err != nil {
		return nil, err
	}
	return tensor.SubAutograd(ones, encoded)
}
