package training

import (
	"fmt"
	"math/rand"
)

// PadToken is the token id used to right-pad sequences to a common width
// within a batch.
const PadToken int32 = 0

// Example is a single labeled text with its token ids.
type Example struct {
	Tokens []int32
	Label  int32
	Text   string
}

// TextDataset is an in-memory collection of labeled token sequences.
type TextDataset struct {
	Examples []Example
}

// Len returns the number of examples.
func (d *TextDataset) Len() int {
	return len(d.Examples)
}

// Validate checks that every example has at least one token and a
// non-negative label below numClasses.
func (d *TextDataset) Validate(numClasses int) error {
	for i, ex := range d.Examples {
		if len(ex.Tokens) == 0 {
			return fmt.Errorf("example %d has no tokens", i)
		}
		if ex.Label < 0 || int(ex.Label) >= numClasses {
			return fmt.Errorf("example %d has label %d out of range [0, %d)", i, ex.Label, numClasses)
		}
	}
	return nil
}

// Shuffle permutes the examples in place using the given seed.
func (d *TextDataset) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(d.Examples), func(i, j int) {
		d.Examples[i], d.Examples[j] = d.Examples[j], d.Examples[i]
	})
}

// Batch is a group of examples padded to a common sequence width.
type Batch struct {
	Tokens  [][]int32 // [batch][maxLen], right-padded with PadToken
	Lengths []int32   // true sequence lengths
	Labels  []int32
	Texts   []string
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Lengths)
}

// BatchLoader iterates over a dataset in fixed-size batches; the final batch
// may be smaller.
type BatchLoader struct {
	dataset   *TextDataset
	batchSize int
	index     int
}

// NewBatchLoader creates a loader over the dataset.
func NewBatchLoader(dataset *TextDataset, batchSize int) (*BatchLoader, error) {
	if dataset == nil || dataset.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &BatchLoader{dataset: dataset, batchSize: batchSize}, nil
}

// NumBatches returns the number of batches per epoch.
func (l *BatchLoader) NumBatches() int {
	return (l.dataset.Len() + l.batchSize - 1) / l.batchSize
}

// HasNext reports whether another batch remains in this epoch.
func (l *BatchLoader) HasNext() bool {
	return l.index < l.dataset.Len()
}

// Next returns the next batch.
func (l *BatchLoader) Next() (*Batch, error) {
	if !l.HasNext() {
		return nil, fmt.Errorf("no more batches; call Reset to start a new epoch")
	}
	end := l.index + l.batchSize
	if end > l.dataset.Len() {
		end = l.dataset.Len()
	}
	batch := padBatch(l.dataset.Examples[l.index:end])
	l.index = end
	return batch, nil
}

// Reset rewinds the loader to the start of the dataset.
func (l *BatchLoader) Reset() {
	l.index = 0
}

// Iterator resets the loader and returns a channel that yields every batch
// of one epoch.
func (l *BatchLoader) Iterator() <-chan *Batch {
	l.Reset()
	ch := make(chan *Batch)
	go func() {
		defer close(ch)
		for l.HasNext() {
			b, err := l.Next()
			if err != nil {
				return
			}
			ch <- b
		}
	}()
	return ch
}

func padBatch(examples []Example) *Batch {
	maxLen := 0
	for _, ex := range examples {
		if len(ex.Tokens) > maxLen {
			maxLen = len(ex.Tokens)
		}
	}
	b := &Batch{
		Tokens:  make([][]int32, len(examples)),
		Lengths: make([]int32, len(examples)),
		Labels:  make([]int32, len(examples)),
		Texts:   make([]string, len(examples)),
	}
	for i, ex := range examples {
		row := make([]int32, maxLen)
		copy(row, ex.Tokens)
		for j := len(ex.Tokens); j < maxLen; j++ {
			row[j] = PadToken
		}
		b.Tokens[i] = row
		b.Lengths[i] = int32(len(ex.Tokens))
		b.Labels[i] = ex.Label
		b.Texts[i] = ex.Text
	}
	return b
}
