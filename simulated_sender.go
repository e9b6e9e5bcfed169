package main

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

const DefaultSuccessProbability = 0.9

var simulatedFailureReasons = []string{
	"number not registered on WhatsApp",
	"connection timeout",
	"number blocked",
	"message rejected by recipient settings",
}

// SimulatedOption customises a SimulatedSender.
type SimulatedOption func(*SimulatedSender)

// WithLatency sets the artificial delay inserted before every outcome.
func WithLatency(d time.Duration) SimulatedOption {
	return func(s *SimulatedSender) {
		if d < 0 {
			d = 0
		}
		s.latency = d
	}
}

// WithSuccessProbability sets the chance in [0,1] that a send succeeds.
func WithSuccessProbability(p float64) SimulatedOption {
	return func(s *SimulatedSender) {
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		s.successProbability = p
	}
}

// WithSeed makes the outcome sequence reproducible.
func WithSeed(seed int64) SimulatedOption {
	return func(s *SimulatedSender) {
		s.rnd = rand.New(rand.NewSource(seed)) // #nosec G404
	}
}

// WithRand swaps in a caller-owned random source.
func WithRand(r *rand.Rand) SimulatedOption {
	return func(s *SimulatedSender) {
		if r != nil {
			s.rnd = r
		}
	}
}

// SimulatedSender pretends to deliver messages. Nothing leaves the process.
type SimulatedSender struct {
	latency            time.Duration
	successProbability float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedSender(opts ...SimulatedOption) *SimulatedSender {
	s := &SimulatedSender{
		latency:            500 * time.Millisecond,
		successProbability: DefaultSuccessProbability,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *SimulatedSender) Send(ctx context.Context, phone, message string, attachment *Attachment) error {
	if phone == "" {
		return errors.New("phone number is required")
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	roll := s.rnd.Float64()
	reason := simulatedFailureReasons[s.rnd.Intn(len(simulatedFailureReasons))]
	s.mu.Unlock()

	if roll < s.successProbability {
		return nil
	}
	return errors.New(reason)
}
