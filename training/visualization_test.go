package training

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileRationaleWriterProducesBothViews(t *testing.T) {
	base := filepath.Join(t.TempDir(), "7")
	w, err := OpenRationaleWriter(base)
	if err != nil {
		t.Fatal(err)
	}
	records := []RationaleRecord{
		{Dataset: "news", Text: "good movie overall", Predicted: 1, Actual: 1, Rationale: []float32{0.9, 0.8, 0.1}},
		{Dataset: "news", Text: "bad plot", Predicted: 0, Actual: 1, Rationale: []float32{0.2, 0.95}},
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	human, err := os.ReadFile(base + ".txt")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(human)), "\n")
	if len(lines) != 2 {
		t.Fatalf("human file has %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "[good]") || !strings.Contains(lines[0], "[movie]") {
		t.Errorf("selected tokens not marked: %q", lines[0])
	}
	if strings.Contains(lines[0], "[overall]") {
		t.Errorf("unselected token marked: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "pred=0 true=1") {
		t.Errorf("prediction header wrong: %q", lines[1])
	}

	machine, err := os.Open(base + ".jsonl")
	if err != nil {
		t.Fatal(err)
	}
	defer machine.Close()
	scanner := bufio.NewScanner(machine)
	var decoded []RationaleRecord
	for scanner.Scan() {
		var rec RationaleRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSON line: %v", err)
		}
		decoded = append(decoded, rec)
	}
	if len(decoded) != 2 {
		t.Fatalf("machine file has %d records, want 2", len(decoded))
	}
	if decoded[0].Text != records[0].Text || decoded[1].Predicted != 0 {
		t.Errorf("decoded records do not match: %+v", decoded)
	}
}

func TestFormatHumanHandlesShortRationale(t *testing.T) {
	line := formatHuman(RationaleRecord{
		Text:      "alpha beta gamma",
		Predicted: 1,
		Actual:    0,
		Rationale: []float32{0.9},
	})
	if !strings.Contains(line, "[alpha]") {
		t.Errorf("first token not marked: %q", line)
	}
	if strings.Contains(line, "[beta]") || strings.Contains(line, "[gamma]") {
		t.Errorf("tokens beyond the rationale marked: %q", line)
	}
}
