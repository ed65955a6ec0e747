package training

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// RationaleRecord is one evaluated example: the original text, the model's
// prediction, and the gate value for each token.
type RationaleRecord struct {
	Dataset   string    `json:"dataset"`
	Text      string    `json:"text"`
	Predicted int32     `json:"predicted"`
	Actual    int32     `json:"actual"`
	Rationale []float32 `json:"rationale"`
}

// RationaleWriter records evaluated examples for later inspection.
type RationaleWriter interface {
	Write(rec RationaleRecord) error
	Close() error
}

// FileRationaleWriter writes each record twice: a human-readable line with
// the selected tokens marked, and a machine-readable JSON line.
type FileRationaleWriter struct {
	human   *os.File
	machine *os.File
	enc     *json.Encoder
}

// OpenRationaleWriter creates <pathBase>.txt and <pathBase>.jsonl.
func OpenRationaleWriter(pathBase string) (*FileRationaleWriter, error) {
	human, err := os.Create(pathBase + ".txt")
	if err != nil {
		return nil, err
	}
	machine, err := os.Create(pathBase + ".jsonl")
	if err != nil {
		human.Close()
		return nil, err
	}
	return &FileRationaleWriter{
		human:   human,
		machine: machine,
		enc:     json.NewEncoder(machine),
	}, nil
}

func (w *FileRationaleWriter) Write(rec RationaleRecord) error {
	if _, err := fmt.Fprintln(w.human, formatHuman(rec)); err != nil {
		return err
	}
	return w.enc.Encode(rec)
}

func (w *FileRationaleWriter) Close() error {
	err1 := w.human.Close()
	err2 := w.machine.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// formatHuman renders one example with selected tokens wrapped in brackets:
// tokens whose gate value is at least 0.5 are the model's rationale.
func formatHuman(rec RationaleRecord) string {
	words := strings.Fields(rec.Text)
	marked := make([]string, len(words))
	for i, w := range words {
		if i < len(rec.Rationale) && rec.Rationale[i] >= 0.5 {
			marked[i] = "[" + w + "]"
		} else {
			marked[i] = w
		}
	}
	return fmt.Sprintf("pred=%d true=%d | %s", rec.Predicted, rec.Actual, strings.Join(marked, " "))
}
