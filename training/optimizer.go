package training

import (
	"fmt"
	"math"
	"sync"

	"github.com/sein-jang/rationale-net/tensor"
)

// Optimizer updates a fixed set of parameters from their accumulated
// gradients.
type Optimizer interface {
	Step() error
	ZeroGrad()
	GetLR() float64
	SetLR(lr float64)
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	mu       sync.Mutex
	params   []*tensor.Tensor
	lr       float64
	momentum float64
	velocity map[*tensor.Tensor][]float32
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*tensor.Tensor, lr, momentum float64) (*SGD, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", lr)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1), got %f", momentum)
	}
	return &SGD{
		params:   params,
		lr:       lr,
		momentum: momentum,
		velocity: make(map[*tensor.Tensor][]float32),
	}, nil
}

func (s *SGD) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		g, err := grad.Float32Data()
		if err != nil {
			return err
		}
		data, err := p.Float32Data()
		if err != nil {
			return err
		}
		if s.momentum > 0 {
			v := s.velocity[p]
			if v == nil {
				v = make([]float32, len(data))
				s.velocity[p] = v
			}
			for i := range data {
				v[i] = float32(s.momentum)*v[i] + g[i]
				data[i] -= float32(s.lr) * v[i]
			}
		} else {
			for i := range data {
				data[i] -= float32(s.lr) * g[i]
			}
		}
	}
	return nil
}

func (s *SGD) ZeroGrad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

func (s *SGD) GetLR() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lr
}

func (s *SGD) SetLR(lr float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lr = lr
}

// Adam implements the Adam optimizer with bias-corrected moment estimates.
type Adam struct {
	mu      sync.Mutex
	params  []*tensor.Tensor
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	step    int
	moment1 map[*tensor.Tensor][]float32
	moment2 map[*tensor.Tensor][]float32
}

// NewAdam creates an Adam optimizer with the standard defaults
// (beta1=0.9, beta2=0.999, epsilon=1e-8).
func NewAdam(params []*tensor.Tensor, lr float64) (*Adam, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", lr)
	}
	return &Adam{
		params:  params,
		lr:      lr,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
		moment1: make(map[*tensor.Tensor][]float32),
		moment2: make(map[*tensor.Tensor][]float32),
	}, nil
}

func (a *Adam) Step() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))
	for _, p := range a.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		g, err := grad.Float32Data()
		if err != nil {
			return err
		}
		data, err := p.Float32Data()
		if err != nil {
			return err
		}
		m1 := a.moment1[p]
		if m1 == nil {
			m1 = make([]float32, len(data))
			a.moment1[p] = m1
		}
		m2 := a.moment2[p]
		if m2 == nil {
			m2 = make([]float32, len(data))
			a.moment2[p] = m2
		}
		for i := range data {
			m1[i] = float32(a.beta1)*m1[i] + float32(1-a.beta1)*g[i]
			m2[i] = float32(a.beta2)*m2[i] + float32(1-a.beta2)*g[i]*g[i]
			mHat := float64(m1[i]) / bc1
			vHat := float64(m2[i]) / bc2
			data[i] -= float32(a.lr * mHat / (math.Sqrt(vHat) + a.epsilon))
		}
	}
	return nil
}

func (a *Adam) ZeroGrad() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

func (a *Adam) GetLR() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lr
}

func (a *Adam) SetLR(lr float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lr = lr
}
