package models

import "time"

// ReviewStat tracks a user's progress with a single card using the SM-2 derived scheduler.
// Instants are epoch milliseconds.
type ReviewStat struct {
	ID              int64   `json:"id"`
	IntervalDays    int     `json:"interval"`       // Days until due at last successful review
	Repetitions     int     `json:"repetitions"`    // Consecutive successful reviews since last miss
	EaseFactor      float64 `json:"easeFactor"`     // Never below 1.3
	NextReviewAt    int64   `json:"nextReview"`     // When the card becomes due
	TotalAttempts   int     `json:"totalAttempts"`
	CorrectAttempts int     `json:"correctAttempts"`
	LastReviewedAt  *int64  `json:"lastReviewDate"` // nil until the first judgment
}

// NextReview returns NextReviewAt as a time.Time
func (s ReviewStat) NextReview() time.Time {
	return time.UnixMilli(s.NextReviewAt)
}

// Accuracy returns the share of correct attempts, 0 when never attempted
func (s ReviewStat) Accuracy() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.CorrectAttempts) / float64(s.TotalAttempts)
}

// GlobalStats summarizes all review records of a user
type GlobalStats struct {
	TotalCards     int `json:"totalCards"`
	MasteredCards  int `json:"masteredCards"`
	ReviewDueCount int `json:"reviewDueCount"`
}
