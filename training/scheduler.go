package training

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// ReduceLROnPlateau lowers the learning rate by a multiplicative factor when
// the monitored metric stops improving for patience consecutive epochs.
type ReduceLROnPlateau struct {
	Factor   float64
	Patience int
	MinLR    float64

	bestMetric  float64
	badEpochs   int
	initialized bool
}

// NewReduceLROnPlateau creates a scheduler. Factor must be in (0, 1).
func NewReduceLROnPlateau(factor float64, patience int, minLR float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		Factor:   factor,
		Patience: patience,
		MinLR:    minLR,
	}
}

// Step observes one epoch's metric (lower is better) and returns the learning
// rate to use next.
func (s *ReduceLROnPlateau) Step(metric, currentLR float64) float64 {
	if !s.initialized {
		s.bestMetric = metric
		s.initialized = true
		return currentLR
	}
	if metric < s.bestMetric {
		s.bestMetric = metric
		s.badEpochs = 0
		return currentLR
	}
	s.badEpochs++
	if s.badEpochs > s.Patience {
		s.badEpochs = 0
		newLR := math.Max(currentLR*s.Factor, s.MinLR)
		if newLR < currentLR {
			log.WithFields(log.Fields{
				"old_lr": currentLR,
				"new_lr": newLR,
			}).Info("metric plateaued, reducing learning rate")
		}
		return newLR
	}
	return currentLR
}
