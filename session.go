package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateConfirming
	StateRunning
	StateCompleted
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfirming:
		return "confirming"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type SendStatus string

const (
	StatusSuccess SendStatus = "success"
	StatusFailure SendStatus = "failure"
)

const reasonAlreadySent = "already sent previously"

// SendResult is the outcome of one contact in a run. Message holds the
// display-truncated text.
type SendResult struct {
	Timestamp  time.Time  `json:"timestamp"`
	Contact    Contact    `json:"contact"`
	Message    string     `json:"message"`
	Status     SendStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Attachment bool       `json:"attachment"`
}

// SendRun is the ordered outcome of one bulk send.
type SendRun struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []SendResult `json:"results"`
}

func (r *SendRun) Total() int { return len(r.Results) }

func (r *SendRun) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusSuccess {
			n++
		}
	}
	return n
}

func (r *SendRun) Failed() int { return r.Total() - r.Sent() }

// SuccessRate is the percentage of successful results, 0 for an empty run.
func (r *SendRun) SuccessRate() float64 {
	if r.Total() == 0 {
		return 0
	}
	return 100 * float64(r.Sent()) / float64(r.Total())
}

// SessionOptions wires a Session to its collaborators.
type SessionOptions struct {
	Sender       Sender
	Personalizer *Personalizer
	Interval     time.Duration
	Attachment   *Attachment
	Logger       zerolog.Logger

	// Skip, when set, marks contacts that must not be sent again.
	Skip func(Contact) bool
	// OnResult observes every recorded result in send order.
	OnResult func(SendResult)

	// Sleep and Now default to real time.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Session owns one bulk send from input collection to the finished run:
// Idle -> Confirming -> Running -> Completed. It is not safe for concurrent use.
type Session struct {
	id       string
	contacts []Contact
	template string
	opts     SessionOptions

	state     SessionState
	confirmed bool
	run       *SendRun
}

func NewSession(contacts []Contact, template string, opts SessionOptions) *Session {
	if opts.Personalizer == nil {
		opts.Personalizer = NewPersonalizer("")
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		id:       uuid.NewString(),
		contacts: contacts,
		template: template,
		opts:     opts,
		state:    StateIdle,
	}
}

func (s *Session) ID() string { return s.id }
func (s *Session) State() SessionState { return s.state }
func (s *Session) Contacts() []Contact { return s.contacts }
func (s *Session) Template() string { return s.template }
func (s *Session) Attachment() *Attachment { return s.opts.Attachment }

// Preview renders the message the first contact would receive.
func (s *Session) Preview() string {
	if len(s.contacts) == 0 {
		return ""
	}
	return s.opts.Personalizer.Personalize(s.template, s.contacts[0])
}

// RequestConfirmation checks the run preconditions and moves the session to
// Confirming.
func (s *Session) RequestConfirmation() error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: cannot request confirmation while %s", ErrInvalidState, s.state)
	}
	if len(s.contacts) == 0 {
		return ErrNoContacts
	}
	if strings.TrimSpace(s.template) == "" {
		return ErrEmptyMessage
	}
	if s.opts.Sender == nil {
		return fmt.Errorf("%w: no sender configured", ErrInvalidState)
	}
	s.state = StateConfirming
	return nil
}

// Confirm records the explicit go-ahead. Only valid while Confirming.
func (s *Session) Confirm() error {
	if s.state != StateConfirming {
		return fmt.Errorf("%w: cannot confirm while %s", ErrInvalidState, s.state)
	}
	s.confirmed = true
	return nil
}

// Run sends to every contact in order and returns the finished run. Send
// failures are recorded, never returned. A cancelled ctx stops the loop and
// the partial run is returned together with ctx.Err().
func (s *Session) Run(ctx context.Context) (*SendRun, error) {
	if s.state != StateConfirming || !s.confirmed {
		return nil, ErrNotConfirmed
	}
	s.state = StateRunning

	log := s.opts.Logger
	run := &SendRun{
		ID:        s.id,
		StartedAt: s.opts.Now(),
		Results:   make([]SendResult, 0, len(s.contacts)),
	}
	s.run = run

	defer func() {
		run.FinishedAt = s.opts.Now()
		s.state = StateCompleted
	}()

	attempted := 0
	for i, contact := range s.contacts {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		message := s.opts.Personalizer.Personalize(s.template, contact)

		if s.opts.Skip != nil && s.opts.Skip(contact) {
			log.Info().Str("phone", contact.Phone).Msg("skipping contact, message already sent previously")
			s.record(SendResult{
				Timestamp: s.opts.Now(),
				Contact:   contact,
				Message:   TruncateMessage(message),
				Status:    StatusFailure,
				Reason:    reasonAlreadySent,
			})
			continue
		}

		if attempted > 0 && s.opts.Interval > 0 {
			if err := s.opts.Sleep(ctx, s.opts.Interval); err != nil {
				return run, err
			}
		}
		attempted++

		log.Info().
			Int("index", i+1).
			Int("total", len(s.contacts)).
			Str("name", contact.Name).
			Str("phone", contact.Phone).
			Msg("sending message")

		result := SendResult{
			Contact:    contact,
			Message:    TruncateMessage(message),
			Status:     StatusSuccess,
			Attachment: s.opts.Attachment != nil,
		}

		if err := s.opts.Sender.Send(ctx, contact.Phone, message, s.opts.Attachment); err != nil {
			result.Status = StatusFailure
			result.Reason = err.Error()
			log.Warn().Err(err).Str("phone", contact.Phone).Msg("send failed")
		} else {
			log.Info().Str("phone", contact.Phone).Msg("message sent")
		}
		result.Timestamp = s.opts.Now()
		s.record(result)
	}

	log.Info().
		Int("total", run.Total()).
		Int("sent", run.Sent()).
		Int("failed", run.Failed()).
		Float64("success_rate", run.SuccessRate()).
		Msg("send run completed")

	return run, nil
}

// Result returns the run once Run has started, nil before.
func (s *Session) Result() *SendRun { return s.run }

func (s *Session) record(result SendResult) {
	s.run.Results = append(s.run.Results, result)
	if s.opts.OnResult != nil {
		s.opts.OnResult(result)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
