package models

import "time"

// Card is a reviewable catalog item: a product name on the front and its numeric code on the back.
type Card struct {
	ID        int64     `json:"id" db:"id"`
	Front     string    `json:"front" db:"name"`
	Back      string    `json:"back" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SaveResult tells what an upsert did to the stored card
type SaveResult int

const (
	SaveUnchanged SaveResult = iota
	SaveCreated
	SaveUpdated
)

// CardIDs returns the ids of the given cards in order
func CardIDs(cards []Card) []int64 {
	ids := make([]int64, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}
