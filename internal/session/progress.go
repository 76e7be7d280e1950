package session

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/example/flashbot/internal/spaced_repetition"
	"go.uber.org/zap"
)

const (
	correctAnswersKey  = "correct_answers"
	lastSessionDateKey = "last_session_date"

	dateLayout = "2006-01-02"
)

// Progress tracks which cards were answered correctly today.
// It starts over when the calendar day changes.
type Progress struct {
	mu      sync.Mutex
	store   spaced_repetition.StateStore
	now     func() time.Time
	log     *zap.Logger
	date    string
	correct map[int64]struct{}
}

// NewProgress loads today's progress from the store
func NewProgress(store spaced_repetition.StateStore, now func() time.Time, log *zap.Logger) *Progress {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Progress{
		store:   store,
		now:     now,
		log:     log,
		correct: make(map[int64]struct{}),
	}
	p.load()
	return p
}

func (p *Progress) today() string {
	return p.now().Format(dateLayout)
}

func (p *Progress) load() {
	p.date = p.today()

	last, err := p.store.Load(lastSessionDateKey)
	if err != nil {
		p.log.Warn("failed to load last session date", zap.Error(err))
		return
	}
	if string(last) != p.date {
		p.save()
		return
	}

	data, err := p.store.Load(correctAnswersKey)
	if err != nil || len(data) == 0 {
		return
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		p.log.Warn("daily progress is corrupt, starting empty", zap.Error(err))
		return
	}
	for _, id := range ids {
		p.correct[id] = struct{}{}
	}
}

func (p *Progress) save() {
	ids := make([]int64, 0, len(p.correct))
	for id := range p.correct {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	data, err := json.Marshal(ids)
	if err != nil {
		p.log.Error("failed to encode daily progress", zap.Error(err))
		return
	}
	if err := p.store.Save(correctAnswersKey, data); err != nil {
		p.log.Error("failed to save daily progress", zap.Error(err))
	}
	if err := p.store.Save(lastSessionDateKey, []byte(p.date)); err != nil {
		p.log.Error("failed to save last session date", zap.Error(err))
	}
}

// Rollover clears the progress when the day changed since it was loaded.
// It reports whether a reset happened.
func (p *Progress) Rollover() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rollover()
}

func (p *Progress) rollover() bool {
	today := p.today()
	if today == p.date {
		return false
	}
	p.date = today
	p.correct = make(map[int64]struct{})
	p.save()
	return true
}

// MarkCorrect records a correct answer for today
func (p *Progress) MarkCorrect(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rollover()
	p.correct[id] = struct{}{}
	p.save()
}

// Has reports whether the card was answered correctly today
func (p *Progress) Has(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.correct[id]
	return ok
}

// Count returns the number of distinct cards answered correctly today
func (p *Progress) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.correct)
}

// Reset forgets today's progress
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.correct = make(map[int64]struct{})
	p.date = p.today()
	p.save()
}
