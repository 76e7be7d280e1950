package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmpty     = errors.New("session: no card left to judge")
	ErrSuspended = errors.New("session: a previous answer is still being processed")
	ErrClosed    = errors.New("session: closed")
)

// DefaultThinkTime is how long a missed card stays on screen before the miss is applied
const DefaultThinkTime = 5 * time.Second

// Outcome describes the session after a judgment was applied
type Outcome struct {
	CardID    int64
	Correct   bool
	Next      int64
	HasNext   bool
	Remaining int
}

// Complete reports whether the judgment finished the pass
func (o Outcome) Complete() bool {
	return !o.HasNext
}

// Option configures a Session
type Option func(*Session)

// WithThinkTime sets the delay before a miss is applied. Zero applies it immediately.
func WithThinkTime(d time.Duration) Option {
	return func(s *Session) { s.thinkTime = d }
}

// WithAfterFunc replaces the timer used for deferred misses.
// after must not call f before returning.
func WithAfterFunc(after AfterFunc) Option {
	return func(s *Session) { s.after = after }
}

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session drives one review pass for one learner. Judgments are serialized;
// while a miss is pending the session is suspended and rejects further answers.
type Session struct {
	mu        sync.Mutex
	id        string
	queue     *Queue
	progress  *Progress
	thinkTime time.Duration
	after     AfterFunc
	log       *zap.Logger
	pending   *Task
	closed    bool
}

// New starts a session over an initialized queue. progress may be nil.
func New(queue *Queue, progress *Progress, opts ...Option) *Session {
	s := &Session{
		id:        uuid.New().String(),
		queue:     queue,
		progress:  progress,
		thinkTime: DefaultThinkTime,
		after:     systemAfterFunc,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("session", s.id))
	return s
}

// ID identifies the session; answers carrying another id are stale
func (s *Session) ID() string {
	return s.id
}

// Current returns the card under review
func (s *Session) Current() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Current()
}

// Remaining returns the number of cards left in the pass
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Suspended reports whether a miss is waiting for its think-time to elapse
func (s *Session) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Session) check() error {
	if s.closed {
		return ErrClosed
	}
	if s.pending != nil {
		return ErrSuspended
	}
	if s.queue.Complete() {
		return ErrEmpty
	}
	return nil
}

func (s *Session) outcome(id int64, correct bool) Outcome {
	next, ok := s.queue.Current()
	return Outcome{
		CardID:    id,
		Correct:   correct,
		Next:      next,
		HasNext:   ok,
		Remaining: s.queue.Len(),
	}
}

// Correct applies a correct answer to the current card
func (s *Session) Correct() (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return Outcome{}, err
	}

	id, _ := s.queue.Current()
	s.queue.OnCorrect()
	if s.progress != nil {
		s.progress.MarkCorrect(id)
	}

	s.log.Debug("card answered correctly", zap.Int64("card", id), zap.Int("remaining", s.queue.Len()))
	return s.outcome(id, true), nil
}

// Incorrect captures a miss on the current card and applies it after the think-time.
// onCommit, if not nil, is called once the miss was applied; it is never called
// when the session is closed first. The captured card id is returned.
func (s *Session) Incorrect(onCommit func(Outcome)) (int64, error) {
	s.mu.Lock()

	if err := s.check(); err != nil {
		s.mu.Unlock()
		return 0, err
	}

	j, _ := s.queue.Capture()

	if s.thinkTime <= 0 {
		out := s.apply(j)
		s.mu.Unlock()
		if onCommit != nil {
			onCommit(out)
		}
		return j.ID, nil
	}

	var task *Task
	task = Schedule(s.after, s.thinkTime, func() {
		s.mu.Lock()
		if s.closed || s.pending != task {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		out := s.apply(j)
		s.mu.Unlock()

		if onCommit != nil {
			onCommit(out)
		}
	})
	s.pending = task
	s.mu.Unlock()

	s.log.Debug("miss deferred", zap.Int64("card", j.ID), zap.Duration("think_time", s.thinkTime))
	return j.ID, nil
}

func (s *Session) apply(j Judgment) Outcome {
	if !s.queue.Apply(j) {
		s.log.Warn("dropping inconsistent judgment", zap.Int64("card", j.ID), zap.Int("position", j.Position))
	}
	return s.outcome(j.ID, false)
}

// Close cancels a pending miss and rejects further judgments
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.pending != nil {
		if s.pending.Cancel() {
			s.log.Debug("pending miss cancelled")
		}
		s.pending = nil
	}
}
