package training

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestProgressMatchesExpectedSequence(t *testing.T) {
	// Dev losses with patience 2: improvements at epochs 1, 2 and 5, then
	// a plateau that exhausts the run at the fourth consecutive stall.
	losses := []float64{5, 3, 3, 4, 2, 2.5, 2.5, 2.5, 2.5}
	wantPhase := []Phase{
		PhaseImproved, PhaseImproved, PhaseStalled, PhaseStalled,
		PhaseImproved, PhaseStalled, PhaseStalled, PhaseStalled, PhaseStalled,
	}
	wantStall := []int{0, 0, 1, 2, 0, 1, 2, 3, 4}
	patience := 2

	p := newProgress()
	for i, loss := range losses {
		p = p.observe(loss)
		if p.phase != wantPhase[i] {
			t.Errorf("epoch %d: phase = %v, want %v", i+1, p.phase, wantPhase[i])
		}
		if p.stall != wantStall[i] {
			t.Errorf("epoch %d: stall = %d, want %d", i+1, p.stall, wantStall[i])
		}
		exhausted := p.exhausted(patience)
		if i == len(losses)-1 && !exhausted {
			t.Error("run should stop at the final epoch")
		}
		if i < len(losses)-1 && exhausted {
			t.Errorf("run stopped early at epoch %d", i+1)
		}
	}
	if p.bestLoss != 2 {
		t.Errorf("best loss = %v, want 2", p.bestLoss)
	}
}

func TestProgressStartsUnbeaten(t *testing.T) {
	p := newProgress()
	if p.phase != PhaseRunning || !math.IsInf(p.bestLoss, 1) {
		t.Errorf("fresh progress = %+v", p)
	}
	p = p.observe(100)
	if p.phase != PhaseImproved {
		t.Error("any first loss must count as an improvement")
	}
}

func TestTrainRejectsInferenceOnly(t *testing.T) {
	m := newTestModel(t, 10, 2)
	cfg := testConfig()
	cfg.InferenceOnly = true
	if _, err := Train(m, smallDataset(), smallDataset(), cfg); !errors.Is(err, ErrInferenceOnly) {
		t.Errorf("Train = %v, want ErrInferenceOnly", err)
	}
}

func TestTrainRejectsInvalidConfig(t *testing.T) {
	m := newTestModel(t, 10, 2)
	cfg := testConfig()
	cfg.Patience = 0
	if _, err := Train(m, smallDataset(), smallDataset(), cfg); err == nil {
		t.Error("expected configuration error")
	}
}

func TestTrainFullRun(t *testing.T) {
	m := newTestModel(t, 10, 2)
	cfg := testConfig()
	cfg.RunRoot = t.TempDir()
	cfg.Patience = 1
	cfg.MaxEpochs = 3
	cfg.Save = true

	res, err := Train(m, smallDataset(), smallDataset(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Epochs < 1 || res.Epochs > 3 {
		t.Errorf("epochs = %d, want between 1 and 3", res.Epochs)
	}
	if res.Loss <= 0 {
		t.Errorf("final loss = %v, want positive", res.Loss)
	}

	// Intermediate snapshots are removed once training finishes.
	tmpRuns, err := os.ReadDir(filepath.Join(cfg.RunRoot, "tmp-runs"))
	if err == nil && len(tmpRuns) != 0 {
		t.Errorf("tmp-runs still holds %d entries", len(tmpRuns))
	}

	if res.SavedPath == "" {
		t.Fatal("Save was set but no path returned")
	}
	if _, err := os.Stat(res.SavedPath); err != nil {
		t.Errorf("saved model missing: %v", err)
	}
	sidecar, err := os.ReadFile(res.SavedPath + "_config.txt")
	if err != nil {
		t.Fatalf("config sidecar missing: %v", err)
	}
	if len(sidecar) == 0 {
		t.Error("config sidecar is empty")
	}
}

func TestTrainWithoutSaveLeavesNoModel(t *testing.T) {
	m := newTestModel(t, 10, 2)
	cfg := testConfig()
	cfg.RunRoot = t.TempDir()
	cfg.Patience = 1
	cfg.MaxEpochs = 2

	res, err := Train(m, smallDataset(), smallDataset(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.SavedPath != "" {
		t.Errorf("SavedPath = %q, want empty", res.SavedPath)
	}
	if _, err := os.Stat(filepath.Join(cfg.RunRoot, "saved-runs")); !os.IsNotExist(err) {
		t.Error("saved-runs directory created without Save")
	}
}

func TestTrainWithDispatcher(t *testing.T) {
	m := newTestModel(t, 10, 2)
	cfg := testConfig()
	cfg.RunRoot = t.TempDir()
	cfg.MaxEpochs = 2

	s, err := NewSupervisor(m, cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Dispatcher = NewDispatcher(2)
	res, err := s.Train(smallDataset(), smallDataset())
	if err != nil {
		t.Fatal(err)
	}
	if res.Epochs != 2 {
		t.Errorf("epochs = %d, want 2", res.Epochs)
	}
}

func TestTrainVisualizeWritesAndCleansUp(t *testing.T) {
	m := newTestModel(t, 10, 2)
	cfg := testConfig()
	cfg.RunRoot = t.TempDir()
	cfg.MaxEpochs = 1
	cfg.Visualize = true

	if _, err := Train(m, smallDataset(), smallDataset(), cfg); err != nil {
		t.Fatal(err)
	}
	// Visualization files live under tmp-runs and are removed with it.
	entries, err := os.ReadDir(filepath.Join(cfg.RunRoot, "tmp-runs"))
	if err == nil && len(entries) != 0 {
		t.Errorf("tmp-runs still holds %d entries after cleanup", len(entries))
	}
}

func TestEpochLogReportsTemperature(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	m := newTestModel(t, 10, 2)
	cfg := testConfig()
	cfg.RunRoot = t.TempDir()
	cfg.MaxEpochs = 1
	cfg.Temperature = 0.8
	if _, err := Train(m, smallDataset(), smallDataset(), cfg); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message != "epoch complete" {
			continue
		}
		found = true
		if temp, ok := e.Data["temperature"]; !ok || temp != 0.8 {
			t.Errorf("epoch log temperature = %v, want 0.8", temp)
		}
		if _, ok := e.Data["epoch"]; !ok {
			t.Error("epoch log is missing the epoch index")
		}
		if _, ok := e.Data["seconds"]; !ok {
			t.Error("epoch log is missing the wall-clock seconds")
		}
	}
	if !found {
		t.Fatal("no epoch log line was emitted")
	}
}
