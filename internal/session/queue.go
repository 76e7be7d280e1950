package session

import (
	"time"

	"github.com/example/flashbot/pkg/models"
)

// MinPositionsAhead is the closest a missed card is ever reinserted behind the front
const MinPositionsAhead = 5

// Scheduler is what the queue needs from the review scheduler
type Scheduler interface {
	HasStats(id int64) bool
	Stats(id int64) models.ReviewStat
	RecordCorrect(id int64) models.ReviewStat
	RecordIncorrect(id int64) models.ReviewStat
	SortByPriority(ids []int64) []int64
}

// Judgment is an incorrect answer captured at the moment it was given.
// Applying it later only depends on these values, never on the live queue.
type Judgment struct {
	ID       int64
	Position int
	Queue    []int64
}

// Queue is the ordered working set of card ids for one review pass.
// The active card is always at the cursor, which is reset to 0 after every judgment.
type Queue struct {
	scheduler Scheduler
	items     []int64
	cursor    int
}

// NewQueue creates an empty queue backed by the given scheduler
func NewQueue(s Scheduler) *Queue {
	return &Queue{scheduler: s}
}

// Initialize rebuilds the queue from the catalog. Cards without stats or due at now
// are reviewed; when nothing is due the whole catalog is offered instead.
func (q *Queue) Initialize(catalogIDs []int64, now time.Time) {
	nowMillis := now.UnixMilli()

	var due []int64
	for _, id := range catalogIDs {
		if !q.scheduler.HasStats(id) || q.scheduler.Stats(id).NextReviewAt <= nowMillis {
			due = append(due, id)
		}
	}

	working := due
	if len(working) == 0 {
		working = catalogIDs
	}

	q.items = q.scheduler.SortByPriority(working)
	q.cursor = 0
}

// Current returns the card under review, false when the pass is complete
func (q *Queue) Current() (int64, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[q.cursor], true
}

// OnCorrect records a correct answer and drops the card from this pass.
// It returns false on an empty queue.
func (q *Queue) OnCorrect() bool {
	id, ok := q.Current()
	if !ok {
		return false
	}

	q.scheduler.RecordCorrect(id)
	q.items = removeAt(q.items, q.cursor)
	q.cursor = 0
	return true
}

// OnIncorrect records a miss and moves the card further back in the queue.
// It returns false on an empty queue.
func (q *Queue) OnIncorrect() bool {
	j, ok := q.Capture()
	if !ok {
		return false
	}
	return q.Apply(j)
}

// Capture snapshots the current card, its position and the queue by value
func (q *Queue) Capture() (Judgment, bool) {
	id, ok := q.Current()
	if !ok {
		return Judgment{}, false
	}
	return Judgment{
		ID:       id,
		Position: q.cursor,
		Queue:    append([]int64(nil), q.items...),
	}, true
}

// Apply records the captured miss and replaces the queue with the snapshot
// reordered by the reinsertion policy. Inconsistent judgments are rejected.
func (q *Queue) Apply(j Judgment) bool {
	if j.Position < 0 || j.Position >= len(j.Queue) || j.Queue[j.Position] != j.ID {
		return false
	}

	q.scheduler.RecordIncorrect(j.ID)
	q.items = Reinsert(j.Queue, j.Position)
	q.cursor = 0
	return true
}

// Reinsert removes the card at position and puts it back
// max(MinPositionsAhead, remaining/2) slots further, capped at the end of the queue.
// The input slice is not modified.
func Reinsert(items []int64, position int) []int64 {
	id := items[position]
	remaining := removeAt(append([]int64(nil), items...), position)

	ahead := max(MinPositionsAhead, len(remaining)/2)
	insertAt := min(position+ahead, len(remaining))

	out := make([]int64, 0, len(items))
	out = append(out, remaining[:insertAt]...)
	out = append(out, id)
	return append(out, remaining[insertAt:]...)
}

// Len returns the number of cards left in this pass
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns a copy of the queue in review order
func (q *Queue) Items() []int64 {
	return append([]int64(nil), q.items...)
}

// Complete reports whether every card of the pass was answered correctly
func (q *Queue) Complete() bool {
	return len(q.items) == 0
}

func removeAt(items []int64, i int) []int64 {
	return append(items[:i], items[i+1:]...)
}
