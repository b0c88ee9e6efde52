// Package attempt runs one timed exam attempt on the client: a one-second
// countdown, local answer selection, and a single guarded submission.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/olympiad/internal/model"
)

// State is the lifecycle stage of an attempt.
type State int

const (
	// NotStarted is a loaded attempt whose timer has not begun.
	NotStarted State = iota
	// InProgress accepts answer changes while the countdown runs.
	InProgress
	// Submitting has locked answers while a submission is outstanding.
	Submitting
	// Finished holds the graded result returned by the server.
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Submitting:
		return "submitting"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Errors returned by Session operations called in the wrong state.
var (
	ErrNotStarted       = errors.New("attempt has not started")
	ErrAlreadyStarted   = errors.New("attempt already started")
	ErrLocked           = errors.New("answers are locked")
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrInFlight         = errors.New("submission in flight")
	ErrNothingToRetry   = errors.New("no failed submission to retry")
)

// Submitter sends a finished attempt to the server.
type Submitter interface {
	Submit(ctx context.Context, p model.SubmissionPayload) (*model.ExamResult, error)
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithSubmitTimeout bounds each submission request. It is unrelated to the
// exam duration.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Session) { s.submitTimeout = d }
}

// WithTickHandler is called after every countdown decrement.
func WithTickHandler(fn func(remaining int64)) Option {
	return func(s *Session) { s.onTick = fn }
}

// WithAutoSubmitHandler is called when a submission triggered by time
// running out completes, successfully or not.
func WithAutoSubmitHandler(fn func(*model.ExamResult, error)) Option {
	return func(s *Session) { s.onAutoSubmit = fn }
}

// Session is a single attempt at an exam. It is safe for concurrent use.
type Session struct {
	exam          model.PublicExam
	submitter     Submitter
	clock         Clock
	submitTimeout time.Duration
	onTick        func(int64)
	onAutoSubmit  func(*model.ExamResult, error)

	mu        sync.Mutex
	ctx       context.Context
	state     State
	remaining int64
	answers   map[string]string
	ticker    Ticker
	stop      chan struct{}
	payload   model.SubmissionPayload
	inFlight  bool
	lastErr   error
	result    *model.ExamResult
	done      chan struct{}
}

// New prepares an attempt. The countdown is set to the exam duration but
// does not run until Start.
func New(exam model.PublicExam, submitter Submitter, opts ...Option) *Session {
	s := &Session{
		exam:          exam,
		submitter:     submitter,
		clock:         RealClock{},
		submitTimeout: 30 * time.Second,
		state:         NotStarted,
		remaining:     int64(exam.DurationMinutes) * 60,
		answers:       make(map[string]string),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the countdown. ctx bounds the automatic submission made when
// time runs out.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != NotStarted {
		return ErrAlreadyStarted
	}
	s.ctx = ctx
	s.state = InProgress
	if s.remaining <= 0 {
		go s.autoSubmit()
		return nil
	}
	s.startTimerLocked()
	slog.Debug("attempt started", "exam_id", s.exam.ID, "remaining", s.remaining)
	return nil
}

// startTimerLocked replaces any running ticker so only one ever decrements.
func (s *Session) startTimerLocked() {
	s.stopTimerLocked()
	s.ticker = s.clock.NewTicker(time.Second)
	s.stop = make(chan struct{})
	go s.run(s.ticker, s.stop)
}

func (s *Session) stopTimerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.stop = nil
}

func (s *Session) run(t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if s.tick() {
				s.autoSubmit()
				return
			}
		}
	}
}

// tick decrements the countdown and reports whether time is up.
func (s *Session) tick() bool {
	s.mu.Lock()
	if s.state != InProgress {
		s.mu.Unlock()
		return false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	remaining := s.remaining
	onTick := s.onTick
	s.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	return remaining == 0
}

func (s *Session) autoSubmit() {
	p, err := s.beginSubmit()
	if err != nil {
		// A manual submit won the race.
		return
	}
	slog.Info("time is up, submitting attempt", "exam_id", s.exam.ID)
	res, err := s.send(s.ctx, p)
	if s.onAutoSubmit != nil {
		s.onAutoSubmit(res, err)
	}
}

// Answer records the answer for a question, replacing any earlier one.
func (s *Session) Answer(questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case NotStarted:
		return ErrNotStarted
	case InProgress:
	default:
		return ErrLocked
	}
	if !s.hasQuestion(questionID) {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	s.answers[questionID] = value
	return nil
}

func (s *Session) hasQuestion(id string) bool {
	for _, q := range s.exam.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

// Submit ends the attempt and sends it. Only the first of Submit and the
// timer expiry sends a request; later triggers get ErrAlreadySubmitted.
func (s *Session) Submit(ctx context.Context) (*model.ExamResult, error) {
	p, err := s.beginSubmit()
	if err != nil {
		return nil, err
	}
	return s.send(ctx, p)
}

// Retry resends the frozen answers after a failed submission.
func (s *Session) Retry(ctx context.Context) (*model.ExamResult, error) {
	s.mu.Lock()
	var err error
	switch {
	case s.state == Finished:
		err = ErrAlreadySubmitted
	case s.inFlight:
		err = ErrInFlight
	case s.state != Submitting || s.lastErr == nil:
		err = ErrNothingToRetry
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.inFlight = true
	p := s.payload
	s.mu.Unlock()

	slog.Info("retrying submission", "exam_id", s.exam.ID)
	return s.send(ctx, p)
}

// beginSubmit is the single-fire transition into Submitting. The timer is
// stopped before the elapsed time is read.
func (s *Session) beginSubmit() (model.SubmissionPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case NotStarted:
		return model.SubmissionPayload{}, ErrNotStarted
	case Submitting, Finished:
		return model.SubmissionPayload{}, ErrAlreadySubmitted
	}

	s.stopTimerLocked()
	s.state = Submitting
	s.inFlight = true

	elapsed := int64(s.exam.DurationMinutes)*60 - s.remaining
	if elapsed < 0 {
		elapsed = 0
	}
	p := model.SubmissionPayload{
		ExamID:      s.exam.ID,
		UserAnswers: make([]model.SubmittedAnswer, 0, len(s.exam.Questions)),
		TimeTaken:   elapsed,
	}
	for _, q := range s.exam.Questions {
		p.UserAnswers = append(p.UserAnswers, model.SubmittedAnswer{QuestionID: q.ID, UserAnswer: s.answers[q.ID]})
	}
	s.payload = p
	return p, nil
}

func (s *Session) send(ctx context.Context, p model.SubmissionPayload) (*model.ExamResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()
	res, err := s.submitter.Submit(reqCtx, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.lastErr = err
		slog.Warn("submission failed", "exam_id", s.exam.ID, "error", err)
		return nil, err
	}
	s.lastErr = nil
	s.result = res
	s.state = Finished
	close(s.done)
	return res, nil
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the seconds left on the countdown.
func (s *Session) Remaining() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Result returns the graded result once the attempt is finished.
func (s *Session) Result() *model.ExamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the error of the last failed submission, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Done is closed when the attempt reaches Finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
