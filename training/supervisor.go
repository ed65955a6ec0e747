package training

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sein-jang/rationale-net/checkpoints"
)

// Phase describes where a training run currently stands.
type Phase int

const (
	// PhaseRunning means the run is mid-epoch.
	PhaseRunning Phase = iota
	// PhaseImproved means the latest dev evaluation beat the best loss.
	PhaseImproved
	// PhaseStalled means the latest dev evaluation did not improve.
	PhaseStalled
	// PhaseDone means the run has stopped.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseImproved:
		return "improved"
	case PhaseStalled:
		return "stalled"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// progress is the early-stopping state, updated functionally so each epoch's
// transition is a pure step from the previous record.
type progress struct {
	bestLoss float64
	bestPath string
	stall    int
	phase    Phase
}

func newProgress() progress {
	return progress{bestLoss: math.Inf(1), phase: PhaseRunning}
}

// observe folds one dev loss into the record. An improvement resets the
// stall counter; anything else increments it.
func (p progress) observe(loss float64) progress {
	next := p
	if loss < p.bestLoss {
		next.bestLoss = loss
		next.stall = 0
		next.phase = PhaseImproved
	} else {
		next.stall++
		next.phase = PhaseStalled
	}
	return next
}

// exhausted reports whether the run has stalled for twice the scheduler
// patience and should stop.
func (p progress) exhausted(patience int) bool {
	return p.stall >= 2*patience
}

// Result is the outcome of a full training run: the final dev evaluation of
// the restored best model, plus where the model was saved, if anywhere.
type Result struct {
	EvalResult
	Epochs    int
	SavedPath string
}

// Supervisor drives the full training lifecycle: epoch loop, dev
// evaluation, learning-rate scheduling, best-checkpoint tracking, early
// stopping, and final model persistence. Dispatcher is optional; when set,
// training steps are routed through it.
type Supervisor struct {
	Model      *Model
	Config     *Config
	Dispatcher *Dispatcher
}

// NewSupervisor validates the configuration and wraps the model.
func NewSupervisor(m *Model, cfg *Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Supervisor{Model: m, Config: cfg}, nil
}

// Train is a convenience wrapper that builds a Supervisor and runs it.
func Train(m *Model, trainData, devData *TextDataset, cfg *Config) (*Result, error) {
	s, err := NewSupervisor(m, cfg)
	if err != nil {
		return nil, err
	}
	return s.Train(trainData, devData)
}

// Train runs epochs until the dev loss has failed to improve for twice the
// configured patience (or MaxEpochs is reached, when set), restores the best
// generator weights, evaluates them once more, removes the intermediate
// snapshots, and optionally persists the full model.
func (s *Supervisor) Train(trainData, devData *TextDataset) (*Result, error) {
	cfg := s.Config
	if cfg.InferenceOnly {
		return nil, ErrInferenceOnly
	}
	if err := trainData.Validate(cfg.NumClasses); err != nil {
		return nil, fmt.Errorf("train split: %w", err)
	}
	if err := devData.Validate(cfg.NumClasses); err != nil {
		return nil, fmt.Errorf("dev split: %w", err)
	}

	runDir := filepath.Join(cfg.RunRoot, "tmp-runs", strconv.FormatInt(time.Now().UnixNano()/100, 10))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	opts, err := NewOptimizers(s.Model, cfg.LearningRate)
	if err != nil {
		return nil, err
	}
	sched := NewReduceLROnPlateau(0.1, cfg.Patience, 0)
	prog := newProgress()
	epoch := 0

	for {
		epoch++
		start := time.Now()
		trainData.Shuffle(int64(epoch))
		if err := s.trainEpoch(trainData, opts); err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		log.WithFields(log.Fields{
			"epoch":       epoch,
			"seconds":     time.Since(start).Seconds(),
			"temperature": cfg.Temperature,
			"lr":          opts.Generator.GetLR(),
		}).Info("epoch complete")

		if epoch%10 == 0 {
			if _, err := Evaluate(s.Model, trainData, cfg, "train", nil); err != nil {
				return nil, fmt.Errorf("epoch %d train evaluation: %w", epoch, err)
			}
		}

		var writer RationaleWriter
		if cfg.Visualize {
			w, err := OpenRationaleWriter(filepath.Join(runDir, strconv.Itoa(epoch)))
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			writer = w
		}
		res, err := Evaluate(s.Model, devData, cfg, "dev", writer)
		if writer != nil {
			if cerr := writer.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if err != nil {
			return nil, fmt.Errorf("epoch %d dev evaluation: %w", epoch, err)
		}

		opts.Generator.SetLR(sched.Step(res.Loss, opts.Generator.GetLR()))

		prog = prog.observe(res.Loss)
		switch prog.phase {
		case PhaseImproved:
			path := filepath.Join(runDir, strconv.Itoa(epoch)+".json")
			if err := s.snapshotGenerator(path, epoch, res.Loss); err != nil {
				return nil, err
			}
			prog.bestPath = path
			log.WithFields(log.Fields{
				"epoch": epoch,
				"loss":  res.Loss,
			}).Info("dev loss improved, snapshot saved")
		case PhaseStalled:
			log.WithFields(log.Fields{
				"epoch": epoch,
				"stall": prog.stall,
			}).Info("dev loss did not improve")
		}

		if prog.exhausted(cfg.Patience) {
			prog.phase = PhaseDone
			log.WithField("epoch", epoch).Info("dev loss exhausted patience, stopping")
			break
		}
		if cfg.MaxEpochs > 0 && epoch >= cfg.MaxEpochs {
			prog.phase = PhaseDone
			log.WithField("epoch", epoch).Info("reached epoch limit, stopping")
			break
		}
	}

	if prog.bestPath != "" {
		snap, err := checkpoints.LoadSnapshot(prog.bestPath)
		if err != nil {
			return nil, fmt.Errorf("restoring best snapshot: %w", err)
		}
		if err := checkpoints.RestoreWeights(snap.Weights, s.Model.Generator.Parameters()); err != nil {
			return nil, fmt.Errorf("restoring best snapshot: %w", err)
		}
		log.WithFields(log.Fields{
			"epoch": snap.Epoch,
			"loss":  snap.Loss,
		}).Info("restored best generator weights")
	}

	final, err := Evaluate(s.Model, devData, cfg, "dev", nil)
	if err != nil {
		return nil, fmt.Errorf("final evaluation: %w", err)
	}
	if err := os.RemoveAll(runDir); err != nil {
		return nil, fmt.Errorf("removing intermediate snapshots: %w", err)
	}

	savedPath := ""
	if cfg.Save {
		savedPath, err = s.saveArtifact()
		if err != nil {
			return nil, err
		}
		log.WithField("path", savedPath).Info("model saved")
	}

	return &Result{EvalResult: *final, Epochs: epoch, SavedPath: savedPath}, nil
}

func (s *Supervisor) trainEpoch(trainData *TextDataset, opts *Optimizers) error {
	loader, err := NewBatchLoader(trainData, s.Config.BatchSize)
	if err != nil {
		return err
	}
	if s.Dispatcher != nil {
		for loader.HasNext() {
			batch, err := loader.Next()
			if err != nil {
				return err
			}
			s.Dispatcher.Submit(func() error {
				_, err := TrainBatch(s.Model, batch, opts, s.Config)
				return err
			})
		}
		return s.Dispatcher.Drain()
	}
	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			return err
		}
		if _, err := TrainBatch(s.Model, batch, opts, s.Config); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) snapshotGenerator(path string, epoch int, loss float64) error {
	weights, err := checkpoints.CaptureWeights("generator", s.Model.Generator.Parameters())
	if err != nil {
		return fmt.Errorf("capturing generator weights: %w", err)
	}
	snap := &checkpoints.Snapshot{Epoch: epoch, Loss: loss, Weights: weights}
	if err := checkpoints.SaveSnapshot(path, snap); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (s *Supervisor) saveArtifact() (string, error) {
	cfg := s.Config
	dir := filepath.Join(cfg.RunRoot, "saved-runs",
		fmt.Sprintf("%s_%d_%d", cfg.Dataset, cfg.NumClasses, time.Now().Unix()))
	path := filepath.Join(dir, "best")

	art := &checkpoints.Artifact{
		Networks: map[string][]checkpoints.WeightTensor{},
		Config:   configMap(cfg),
		SavedAt:  time.Now(),
	}
	for name, net := range map[string]Network{
		"generator": s.Model.Generator,
		"predictor": s.Model.Predictor,
		"adversary": s.Model.Adversary,
	} {
		weights, err := checkpoints.CaptureWeights(name, net.Parameters())
		if err != nil {
			return "", fmt.Errorf("capturing %s weights: %w", name, err)
		}
		art.Networks[name] = weights
	}
	if err := checkpoints.SaveArtifact(path, art); err != nil {
		return "", err
	}
	if err := os.WriteFile(path+"_config.txt", []byte(cfg.Sidecar()), 0o644); err != nil {
		return "", fmt.Errorf("writing config sidecar: %w", err)
	}
	return path, nil
}

func configMap(cfg *Config) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(cfg.Sidecar()), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			out[k] = v
		}
	}
	return out
}
