package spaced_repetition

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/flashbot/pkg/models"
	"go.uber.org/zap"
)

// StateKey is the key under which the stats table is persisted
const StateKey = "spaced_repetition_state"

const (
	InitialEaseFactor = 2.5
	MinEaseFactor     = 1.3

	correctEaseBonus     = 0.1
	incorrectEasePenalty = 0.2

	// A missed card becomes due again after this delay
	RelearnDelay = 5 * time.Minute

	dayMillis = int64(24 * time.Hour / time.Millisecond)
)

// A card counts as mastered once it reaches both thresholds
const (
	MasteredRepetitions = 5
	MasteredEaseFactor  = 2.3
)

// StateStore is the key-value persistence port of the scheduler.
// Load returns nil data and a nil error when the key is absent.
type StateStore interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger used for persistence failures
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler owns the review statistics of one learner and decides when cards are due.
// It is safe for concurrent use.
type Scheduler struct {
	mu    sync.Mutex
	store StateStore
	now   func() time.Time
	log   *zap.Logger
	state map[int64]*models.ReviewStat
}

// NewScheduler creates a scheduler and loads its state from the store.
// Unreadable or corrupt state is treated as empty.
func NewScheduler(store StateStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		store: store,
		now:   time.Now,
		log:   zap.NewNop(),
		state: make(map[int64]*models.ReviewStat),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

func (s *Scheduler) load() {
	data, err := s.store.Load(StateKey)
	if err != nil {
		s.log.Warn("failed to load review state", zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}

	var raw map[string]*models.ReviewStat
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn("review state is corrupt, starting empty", zap.Error(err))
		return
	}

	for key, stat := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || stat == nil {
			s.log.Warn("skipping malformed review record", zap.String("key", key))
			continue
		}
		stat.ID = id
		if stat.EaseFactor < MinEaseFactor {
			stat.EaseFactor = MinEaseFactor
		}
		s.state[id] = stat
	}
}

func (s *Scheduler) save() {
	raw := make(map[string]*models.ReviewStat, len(s.state))
	for id, stat := range s.state {
		raw[strconv.FormatInt(id, 10)] = stat
	}

	data, err := json.Marshal(raw)
	if err != nil {
		s.log.Error("failed to encode review state", zap.Error(err))
		return
	}
	if err := s.store.Save(StateKey, data); err != nil {
		s.log.Error("failed to save review state", zap.Error(err))
	}
}

// ensure returns the record for id, creating a due-now default when absent.
// The bool reports whether a record was created.
func (s *Scheduler) ensure(id int64) (*models.ReviewStat, bool) {
	if stat, ok := s.state[id]; ok {
		return stat, false
	}
	stat := &models.ReviewStat{
		ID:           id,
		EaseFactor:   InitialEaseFactor,
		NextReviewAt: s.now().UnixMilli(),
	}
	s.state[id] = stat
	return stat, true
}

// HasStats reports whether a record exists for id without creating one
func (s *Scheduler) HasStats(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.state[id]
	return ok
}

// Stats returns the record for id. A missing record is created as due now.
func (s *Scheduler) Stats(id int64) models.ReviewStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, created := s.ensure(id)
	if created {
		s.save()
	}
	return *stat
}

// RecordCorrect applies a successful review to the card
func (s *Scheduler) RecordCorrect(id int64) models.ReviewStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, _ := s.ensure(id)
	now := s.now().UnixMilli()

	stat.TotalAttempts++
	stat.CorrectAttempts++
	stat.LastReviewedAt = &now

	switch stat.Repetitions {
	case 0:
		stat.IntervalDays = 1
	case 1:
		stat.IntervalDays = 3
	default:
		stat.IntervalDays = int(math.Round(float64(stat.IntervalDays) * stat.EaseFactor))
	}

	stat.Repetitions++
	stat.EaseFactor = math.Max(MinEaseFactor, stat.EaseFactor+correctEaseBonus)
	stat.NextReviewAt = now + int64(stat.IntervalDays)*dayMillis

	s.save()
	return *stat
}

// RecordIncorrect applies a miss: progress is reset and the card is due again shortly
func (s *Scheduler) RecordIncorrect(id int64) models.ReviewStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, _ := s.ensure(id)
	now := s.now().UnixMilli()

	stat.TotalAttempts++
	stat.LastReviewedAt = &now
	stat.Repetitions = 0
	stat.IntervalDays = 0
	stat.EaseFactor = math.Max(MinEaseFactor, stat.EaseFactor-incorrectEasePenalty)
	stat.NextReviewAt = now + RelearnDelay.Milliseconds()

	s.save()
	return *stat
}

// SortByPriority returns ids ordered most urgent first:
// due cards before the rest, then lower ease factor, then fewer repetitions.
// Remaining ties keep the input order.
func (s *Scheduler) SortByPriority(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()

	created := false
	stats := make(map[int64]*models.ReviewStat, len(ids))
	for _, id := range ids {
		stat, isNew := s.ensure(id)
		created = created || isNew
		stats[id] = stat
	}
	if created {
		s.save()
	}

	sorted := make([]int64, len(ids))
	copy(sorted, ids)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := stats[sorted[i]], stats[sorted[j]]

		dueA, dueB := a.NextReviewAt < now, b.NextReviewAt < now
		if dueA != dueB {
			return dueA
		}
		if a.EaseFactor != b.EaseFactor {
			return a.EaseFactor < b.EaseFactor
		}
		return a.Repetitions < b.Repetitions
	})

	return sorted
}

// GlobalStats counts all records, the mastered ones and those currently due
func (s *Scheduler) GlobalStats() models.GlobalStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	gs := models.GlobalStats{TotalCards: len(s.state)}

	for _, stat := range s.state {
		if stat.NextReviewAt < now {
			gs.ReviewDueCount++
		}
		if IsMastered(*stat) {
			gs.MasteredCards++
		}
	}
	return gs
}

// AllStats returns a copy of every record
func (s *Scheduler) AllStats() map[int64]models.ReviewStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]models.ReviewStat, len(s.state))
	for id, stat := range s.state {
		out[id] = *stat
	}
	return out
}

// Reset drops every record and persists the empty table
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = make(map[int64]*models.ReviewStat)
	s.save()
}

// IsMastered determines if a card is considered learned
func IsMastered(stat models.ReviewStat) bool {
	return stat.Repetitions >= MasteredRepetitions && stat.EaseFactor >= MasteredEaseFactor
}
