package training

import (
	"fmt"

	"github.com/sein-jang/rationale-net/tensor"
)

// Network is the common surface of the trainable components: a parameter
// list plus a train/eval mode switch.
type Network interface {
	Parameters() []*tensor.Tensor
	Train()
	Eval()
	IsTraining() bool
}

// Generator produces, for each token position, a selection probability
// (the rationale) and an encoded sequence whose final slot holds class
// logits. Output shapes are [batch, seqLen+1, classes] and [batch, seqLen].
type Generator interface {
	Network
	Forward(tokens, lengths *tensor.Tensor, temperature float64, hard bool) (encoded, rationale *tensor.Tensor, err error)
}

// Predictor classifies an encoded sequence produced by a Generator,
// returning [batch, classes] logits.
type Predictor interface {
	Network
	Forward(encoded, lengths *tensor.Tensor, temperature float64, hard bool) (*tensor.Tensor, error)
}

// Model bundles the three networks of the adversarial rationale game: the
// generator, the predictor that sees the highlighted tokens, and the
// adversary that sees their complement.
type Model struct {
	Generator Generator
	Predictor Predictor
	Adversary Predictor
}

// Train puts all three networks in training mode.
func (m *Model) Train() {
	m.Generator.Train()
	m.Predictor.Train()
	m.Adversary.Train()
}

// Eval puts all three networks in inference mode.
func (m *Model) Eval() {
	m.Generator.Eval()
	m.Predictor.Eval()
	m.Adversary.Eval()
}

// Linear is a fully connected layer with Xavier-initialized weights.
type Linear struct {
	Weight *tensor.Tensor // [in, out]
	Bias   *tensor.Tensor // [out]
}

// NewLinear creates a Linear layer mapping inFeatures to outFeatures.
func NewLinear(inFeatures, outFeatures int, device tensor.DeviceType) (*Linear, error) {
	weight, err := tensor.XavierUniform([]int{inFeatures, outFeatures}, device, inFeatures, outFeatures)
	if err != nil {
		return nil, err
	}
	if err := weight.SetRequiresGrad(true); err != nil {
		return nil, err
	}
	bias, err := tensor.Zeros([]int{outFeatures}, tensor.Float32, device)
	if err != nil {
		return nil, err
	}
	if err := bias.SetRequiresGrad(true); err != nil {
		return nil, err
	}
	return &Linear{Weight: weight, Bias: bias}, nil
}

// Forward computes x @ W + b for a 2-D input.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := tensor.MatMulAutograd(x, l.Weight)
	if err != nil {
		return nil, err
	}
	return tensor.AddAutograd(y, l.Bias)
}

// Parameters returns the layer's trainable tensors.
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.Weight, l.Bias}
}

// TokenGenerator is the reference Generator: an embedding table, a
// per-token relevance scorer, and two projection heads. One head maps each
// gated token embedding to class space; the other classifies the
// length-normalized pooled sequence. The pooled logits occupy the final
// slot of the encoded output.
type TokenGenerator struct {
	Embedding  *tensor.Tensor // [vocab, dim]
	Scorer     *Linear        // dim -> 1
	TokenProj  *Linear        // dim -> classes
	Classifier *Linear        // dim -> classes
	embedDim   int
	numClasses int
	training   bool
}

// NewTokenGenerator creates a TokenGenerator for the given vocabulary,
// embedding width and class count.
func NewTokenGenerator(vocabSize, embedDim, numClasses int, device tensor.DeviceType) (*TokenGenerator, error) {
	if vocabSize <= 0 || embedDim <= 0 || numClasses < 2 {
		return nil, fmt.Errorf("invalid generator dimensions: vocab=%d dim=%d classes=%d", vocabSize, embedDim, numClasses)
	}
	embedding, err := tensor.RandomNormal([]int{vocabSize, embedDim}, device, 0, 0.1)
	if err != nil {
		return nil, err
	}
	if err := embedding.SetRequiresGrad(true); err != nil {
		return nil, err
	}
	scorer, err := NewLinear(embedDim, 1, device)
	if err != nil {
		return nil, err
	}
	tokenProj, err := NewLinear(embedDim, numClasses, device)
	if err != nil {
		return nil, err
	}
	classifier, err := NewLinear(embedDim, numClasses, device)
	if err != nil {
		return nil, err
	}
	return &TokenGenerator{
		Embedding:  embedding,
		Scorer:     scorer,
		TokenProj:  tokenProj,
		Classifier: classifier,
		embedDim:   embedDim,
		numClasses: numClasses,
		training:   true,
	}, nil
}

func (g *TokenGenerator) Forward(tokens, lengths *tensor.Tensor, temperature float64, hard bool) (*tensor.Tensor, *tensor.Tensor, error) {
	if temperature <= 0 {
		return nil, nil, fmt.Errorf("temperature must be positive, got %f", temperature)
	}
	if tokens.Dims() != 2 {
		return nil, nil, fmt.Errorf("tokens must be [batch, seqLen], got %v", tokens.Shape)
	}
	batch, seqLen := tokens.Shape[0], tokens.Shape[1]

	emb, err := tensor.EmbeddingAutograd(g.Embedding, tokens)
	if err != nil {
		return nil, nil, err
	}
	flat, err := tensor.ReshapeAutograd(emb, []int{batch * seqLen, g.embedDim})
	if err != nil {
		return nil, nil, err
	}
	scores, err := g.Scorer.Forward(flat)
	if err != nil {
		return nil, nil, err
	}
	scores, err = tensor.ReshapeAutograd(scores, []int{batch, seqLen})
	if err != nil {
		return nil, nil, err
	}
	temp, err := tensor.FromScalar(temperature, tokens.Device)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := tensor.DivAutograd(scores, temp)
	if err != nil {
		return nil, nil, err
	}
	rationale, err := tensor.SigmoidAutograd(scaled)
	if err != nil {
		return nil, nil, err
	}
	if hard {
		rationale, err = binarize(rationale)
		if err != nil {
			return nil, nil, err
		}
	}

	gate, err := tensor.ReshapeAutograd(rationale, []int{batch, seqLen, 1})
	if err != nil {
		return nil, nil, err
	}
	gated, err := tensor.MulAutograd(emb, gate)
	if err != nil {
		return nil, nil, err
	}

	gatedFlat, err := tensor.ReshapeAutograd(gated, []int{batch * seqLen, g.embedDim})
	if err != nil {
		return nil, nil, err
	}
	tokenChannels, err := g.TokenProj.Forward(gatedFlat)
	if err != nil {
		return nil, nil, err
	}
	tokenChannels, err = tensor.ReshapeAutograd(tokenChannels, []int{batch, seqLen, g.numClasses})
	if err != nil {
		return nil, nil, err
	}

	pooled, err := maskedMean(gated, lengths, seqLen)
	if err != nil {
		return nil, nil, err
	}
	logits, err := g.Classifier.Forward(pooled)
	if err != nil {
		return nil, nil, err
	}
	logits, err = tensor.ReshapeAutograd(logits, []int{batch, 1, g.numClasses})
	if err != nil {
		return nil, nil, err
	}

	encoded, err := tensor.ConcatAutograd(tokenChannels, logits, 1)
	if err != nil {
		return nil, nil, err
	}
	return encoded, rationale, nil
}

func (g *TokenGenerator) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{g.Embedding}
	params = append(params, g.Scorer.Parameters()...)
	params = append(params, g.TokenProj.Parameters()...)
	params = append(params, g.Classifier.Parameters()...)
	return params
}

func (g *TokenGenerator) Train()           { g.training = true }
func (g *TokenGenerator) Eval()            { g.training = false }
func (g *TokenGenerator) IsTraining() bool { return g.training }

// GateClassifier is the reference Predictor: it pools the per-token class
// channels of an encoded sequence over the true sequence length and
// classifies the result through one hidden layer.
type GateClassifier struct {
	Hidden     *Linear
	Output     *Linear
	numClasses int
	training   bool
}

// NewGateClassifier creates a GateClassifier with the given hidden width.
func NewGateClassifier(numClasses, hiddenDim int, device tensor.DeviceType) (*GateClassifier, error) {
	if numClasses < 2 || hiddenDim <= 0 {
		return nil, fmt.Errorf("invalid predictor dimensions: classes=%d hidden=%d", numClasses, hiddenDim)
	}
	hidden, err := NewLinear(numClasses, hiddenDim, device)
	if err != nil {
		return nil, err
	}
	output, err := NewLinear(hiddenDim, numClasses, device)
	if err != nil {
		return nil, err
	}
	return &GateClassifier{
		Hidden:     hidden,
		Output:     output,
		numClasses: numClasses,
		training:   true,
	}, nil
}

func (p *GateClassifier) Forward(encoded, lengths *tensor.Tensor, temperature float64, hard bool) (*tensor.Tensor, error) {
	if encoded.Dims() != 3 {
		return nil, fmt.Errorf("encoded input must be [batch, seqLen+1, classes], got %v", encoded.Shape)
	}
	seqLen := encoded.Shape[1] - 1
	if seqLen < 1 {
		return nil, fmt.Errorf("encoded input has no token positions: %v", encoded.Shape)
	}
	// Drop the generator's own logit slot; the predictor judges the token
	// channels only.
	body, err := tensor.NarrowAutograd(encoded, 1, 0, seqLen)
	if err != nil {
		return nil, err
	}
	pooled, err := maskedMean(body, lengths, seqLen)
	if err != nil {
		return nil, err
	}
	h, err := p.Hidden.Forward(pooled)
	if err != nil {
		return nil, err
	}
	h, err = tensor.ReLUAutograd(h)
	if err != nil {
		return nil, err
	}
	return p.Output.Forward(h)
}

func (p *GateClassifier) Parameters() []*tensor.Tensor {
	params := p.Hidden.Parameters()
	return append(append([]*tensor.Tensor(nil), params...), p.Output.Parameters()...)
}

func (p *GateClassifier) Train()           { p.training = true }
func (p *GateClassifier) Eval()            { p.training = false }
func (p *GateClassifier) IsTraining() bool { return p.training }

// maskedMean averages x ([batch, seqLen, features]) over the sequence
// dimension, zeroing padded positions and dividing by the true lengths.
func maskedMean(x, lengths *tensor.Tensor, seqLen int) (*tensor.Tensor, error) {
	lens, err := lengths.Int32Data()
	if err != nil {
		return nil, err
	}
	batch := x.Shape[0]
	if len(lens) != batch {
		return nil, fmt.Errorf("got %d lengths for batch of %d", len(lens), batch)
	}
	mask, err := maskOfWidth(lens, seqLen, x.Device)
	if err != nil {
		return nil, err
	}
	mask3, err := mask.Reshape([]int{batch, seqLen, 1})
	if err != nil {
		return nil, err
	}
	masked, err := tensor.MulAutograd(x, mask3)
	if err != nil {
		return nil, err
	}
	summed, err := tensor.SumDimAutograd(masked, 1)
	if err != nil {
		return nil, err
	}
	lensF, err := lengthsAsFloats(lengths)
	if err != nil {
		return nil, err
	}
	lensCol, err := lensF.Reshape([]int{batch, 1})
	if err != nil {
		return nil, err
	}
	return tensor.DivAutograd(summed, lensCol)
}

// binarize thresholds selection probabilities at 0.5, producing a constant
// hard mask. Used in inference mode only; gradients do not flow through it.
func binarize(rationale *tensor.Tensor) (*tensor.Tensor, error) {
	data, err := rationale.Float32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	for i, v := range data {
		if v >= 0.5 {
			out[i] = 1
		}
	}
	return tensor.NewTensor(rationale.Shape, tensor.Float32, rationale.Device, out)
}
