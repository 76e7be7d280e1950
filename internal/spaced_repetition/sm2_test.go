package spaced_repetition

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type memoryStore struct {
	data    map[string][]byte
	loadErr error
	saveErr error
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Load(key string) ([]byte, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[key], nil
}

func (m *memoryStore) Save(key string, data []byte) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestScheduler(t *testing.T) (*Scheduler, *memoryStore, *clock) {
	t.Helper()
	store := newMemoryStore()
	clk := &clock{now: t0}
	return NewScheduler(store, WithClock(clk.Now)), store, clk
}

func TestStatsLazyDefault(t *testing.T) {
	s, store, _ := newTestScheduler(t)

	assert.False(t, s.HasStats(7))
	stat := s.Stats(7)

	assert.True(t, s.HasStats(7))
	assert.Equal(t, int64(7), stat.ID)
	assert.Equal(t, InitialEaseFactor, stat.EaseFactor)
	assert.Equal(t, 0, stat.Repetitions)
	assert.Equal(t, 0, stat.IntervalDays)
	assert.Equal(t, t0.UnixMilli(), stat.NextReviewAt)
	assert.Nil(t, stat.LastReviewedAt)
	assert.Equal(t, 1, store.saves)

	s.Stats(7)
	assert.Equal(t, 1, store.saves, "existing record must not be persisted again")
}

func TestRecordCorrectIntervals(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	first := s.RecordCorrect(1)
	assert.Equal(t, 1, first.IntervalDays)
	assert.Equal(t, 1, first.Repetitions)
	assert.InDelta(t, 2.6, first.EaseFactor, 1e-9)
	assert.Equal(t, t0.UnixMilli()+dayMillis, first.NextReviewAt)
	require.NotNil(t, first.LastReviewedAt)
	assert.Equal(t, t0.UnixMilli(), *first.LastReviewedAt)

	second := s.RecordCorrect(1)
	assert.Equal(t, 3, second.IntervalDays)
	assert.Equal(t, 2, second.Repetitions)

	third := s.RecordCorrect(1)
	want := int(math.Round(3 * second.EaseFactor))
	assert.Equal(t, want, third.IntervalDays)
	assert.Equal(t, 8, third.IntervalDays)
	assert.Equal(t, 3, third.TotalAttempts)
	assert.Equal(t, 3, third.CorrectAttempts)
	assert.Equal(t, t0.UnixMilli()+int64(8)*dayMillis, third.NextReviewAt)
}

func TestRecordIncorrectResets(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	s.RecordCorrect(1)
	s.RecordCorrect(1)
	stat := s.RecordIncorrect(1)

	assert.Equal(t, 0, stat.Repetitions)
	assert.Equal(t, 0, stat.IntervalDays)
	assert.InDelta(t, 2.5, stat.EaseFactor, 1e-9)
	assert.Equal(t, 3, stat.TotalAttempts)
	assert.Equal(t, 2, stat.CorrectAttempts)
	assert.Equal(t, t0.Add(RelearnDelay).UnixMilli(), stat.NextReviewAt)

	// After a miss the ladder restarts at one day.
	again := s.RecordCorrect(1)
	assert.Equal(t, 1, again.IntervalDays)
}

func TestEaseFactorFloor(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	for i := 0; i < 20; i++ {
		stat := s.RecordIncorrect(3)
		assert.GreaterOrEqual(t, stat.EaseFactor, MinEaseFactor)
	}
	assert.Equal(t, MinEaseFactor, s.Stats(3).EaseFactor)
}

func TestEaseFactorFloorRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s, _, clk := newTestScheduler(t)

	for i := 0; i < 2000; i++ {
		id := int64(rng.Intn(5))
		if rng.Intn(3) == 0 {
			s.RecordCorrect(id)
		} else {
			stat := s.RecordIncorrect(id)
			assert.Equal(t, 0, stat.Repetitions)
			assert.Equal(t, 0, stat.IntervalDays)
		}
		require.GreaterOrEqual(t, s.Stats(id).EaseFactor, MinEaseFactor)
		clk.Advance(time.Minute)
	}
}

func TestSortByPriorityDueFirst(t *testing.T) {
	s, _, clk := newTestScheduler(t)

	// 1 and 3 answered correctly: not due for a day.
	s.RecordCorrect(1)
	s.RecordCorrect(3)
	// 2 and 4 are fresh records, due once time moves on.
	s.Stats(2)
	s.Stats(4)
	clk.Advance(time.Second)

	got := s.SortByPriority([]int64{1, 2, 3, 4})
	assert.Equal(t, []int64{2, 4, 1, 3}, got)
}

func TestSortByPriorityTieBreaks(t *testing.T) {
	s, _, clk := newTestScheduler(t)

	s.RecordIncorrect(10) // ease 2.3
	s.RecordCorrect(11)
	s.RecordIncorrect(11) // ease 2.4, reps 0
	s.Stats(12)           // ease 2.5, reps 0
	s.Stats(13)           // ease 2.5, reps 0
	clk.Advance(10 * time.Minute)

	got := s.SortByPriority([]int64{13, 12, 11, 10})
	assert.Equal(t, []int64{10, 11, 13, 12}, got)
}

func TestSortByPriorityRepetitionsTier(t *testing.T) {
	s, _, clk := newTestScheduler(t)

	// Equal ease, different repetitions, both not due.
	s.RecordCorrect(1)
	s.RecordCorrect(1) // reps 2
	s.RecordCorrect(5) // reps 1
	s.state[5].EaseFactor = s.state[1].EaseFactor
	clk.Advance(time.Hour)

	got := s.SortByPriority([]int64{1, 5})
	assert.Equal(t, []int64{5, 1}, got)
}

func TestSortByPriorityDoesNotMutateInput(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.RecordIncorrect(2)

	in := []int64{1, 2}
	_ = s.SortByPriority(in)
	assert.Equal(t, []int64{1, 2}, in)
	assert.True(t, s.HasStats(1), "sorting touches unseen ids")
}

func TestSortByPriorityPropertyDueBeforeNotDue(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s, _, clk := newTestScheduler(t)

	ids := make([]int64, 40)
	for i := range ids {
		ids[i] = int64(i)
		switch rng.Intn(3) {
		case 0:
			s.RecordCorrect(ids[i])
		case 1:
			s.RecordIncorrect(ids[i])
		default:
			s.Stats(ids[i])
		}
	}
	clk.Advance(6 * time.Minute)

	now := clk.Now().UnixMilli()
	sorted := s.SortByPriority(ids)
	seenNotDue := false
	for _, id := range sorted {
		due := s.Stats(id).NextReviewAt < now
		if !due {
			seenNotDue = true
			continue
		}
		assert.False(t, seenNotDue, "due card %d placed after a card that is not due", id)
	}
}

func TestGlobalStats(t *testing.T) {
	s, _, clk := newTestScheduler(t)

	for i := 0; i < 5; i++ {
		s.RecordCorrect(1)
	}
	s.RecordIncorrect(2)
	s.Stats(3)
	clk.Advance(10 * time.Minute)

	gs := s.GlobalStats()
	assert.Equal(t, 3, gs.TotalCards)
	assert.Equal(t, 1, gs.MasteredCards)
	assert.Equal(t, 2, gs.ReviewDueCount)
}

func TestPersistenceRoundTrip(t *testing.T) {
	s, store, clk := newTestScheduler(t)
	s.RecordCorrect(1)
	s.RecordIncorrect(2)

	reloaded := NewScheduler(store, WithClock(clk.Now))
	assert.Equal(t, s.AllStats(), reloaded.AllStats())
	assert.Contains(t, string(store.data[StateKey]), `"easeFactor"`)
	assert.Contains(t, string(store.data[StateKey]), `"1":`)
}

func TestCorruptStateStartsEmpty(t *testing.T) {
	store := newMemoryStore()
	store.data[StateKey] = []byte("{not json")

	s := NewScheduler(store)
	assert.Empty(t, s.AllStats())
	assert.Equal(t, 0, s.GlobalStats().TotalCards)
}

func TestLoadErrorStartsEmpty(t *testing.T) {
	store := newMemoryStore()
	store.loadErr = errors.New("disk gone")

	s := NewScheduler(store)
	assert.Empty(t, s.AllStats())
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	s, store, _ := newTestScheduler(t)
	store.saveErr = errors.New("read-only")

	stat := s.RecordCorrect(9)
	assert.Equal(t, 1, stat.Repetitions)
	assert.Equal(t, 1, s.Stats(9).Repetitions)
	assert.Empty(t, store.data[StateKey])
}

func TestLoadClampsEaseFactor(t *testing.T) {
	store := newMemoryStore()
	store.data[StateKey] = []byte(`{"4":{"id":4,"easeFactor":0.9,"repetitions":2},"x":{"id":1}}`)

	s := NewScheduler(store)
	assert.Equal(t, MinEaseFactor, s.Stats(4).EaseFactor)
	assert.Len(t, s.AllStats(), 1)
}

func TestReset(t *testing.T) {
	s, store, clk := newTestScheduler(t)
	s.RecordCorrect(1)
	s.Reset()

	assert.Empty(t, s.AllStats())
	reloaded := NewScheduler(store, WithClock(clk.Now))
	assert.Empty(t, reloaded.AllStats())
}
