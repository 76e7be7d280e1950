package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/flashbot/pkg/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrCardNotFound  = errors.New("card not found")
	ErrDuplicateCode = errors.New("card code already exists")
	ErrInvalidCard   = errors.New("card needs a numeric code and a name")
)

const cardColumns = "id, code, name, created_at"

// CardRepository handles database operations for the card catalog
type CardRepository struct {
	db *sqlx.DB
}

// NewCardRepository creates a new repository instance
func NewCardRepository(db *sqlx.DB) *CardRepository {
	return &CardRepository{db: db}
}

// GetAll returns the whole catalog ordered by code
func (r *CardRepository) GetAll(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.SelectContext(ctx, &cards, "SELECT "+cardColumns+" FROM cards ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}
	return cards, nil
}

// GetByID returns a card by ID
func (r *CardRepository) GetByID(ctx context.Context, id int64) (*models.Card, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByCode returns a card by its code
func (r *CardRepository) GetByCode(ctx context.Context, code string) (*models.Card, error) {
	return r.getOne(ctx, "code = ?", strings.TrimSpace(code))
}

func (r *CardRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Card, error) {
	var card models.Card
	query := r.db.Rebind("SELECT " + cardColumns + " FROM cards WHERE " + where)
	err := r.db.GetContext(ctx, &card, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &card, nil
}

// Count returns the catalog size
func (r *CardRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM cards"); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

// Create inserts a new card with the next free id. A code that is already
// in the catalog yields ErrDuplicateCode.
func (r *CardRepository) Create(ctx context.Context, card *models.Card) error {
	card.Front = strings.TrimSpace(card.Front)
	card.Back = strings.TrimSpace(card.Back)
	if card.Front == "" || !isNumeric(card.Back) {
		return ErrInvalidCard
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.GetContext(ctx, &exists, tx.Rebind("SELECT COUNT(*) FROM cards WHERE code = ?"), card.Back)
	if err != nil {
		return fmt.Errorf("failed to check card code: %w", err)
	}
	if exists > 0 {
		return ErrDuplicateCode
	}

	var nextID int64
	if err := tx.GetContext(ctx, &nextID, "SELECT COALESCE(MAX(id), 0) + 1 FROM cards"); err != nil {
		return fmt.Errorf("failed to get next card id: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind("INSERT INTO cards (id, code, name) VALUES (?, ?, ?)"),
		nextID, card.Back, card.Front)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}

	if err := tx.GetContext(ctx, &card.CreatedAt, tx.Rebind("SELECT created_at FROM cards WHERE id = ?"), nextID); err != nil {
		return fmt.Errorf("failed to read card timestamps: %w", err)
	}
	card.ID = nextID

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit card: %w", err)
	}
	return nil
}

// Upsert creates the card or renames the existing card with the same code
func (r *CardRepository) Upsert(ctx context.Context, card *models.Card) (models.SaveResult, error) {
	existing, err := r.GetByCode(ctx, card.Back)
	if errors.Is(err, ErrCardNotFound) {
		if err := r.Create(ctx, card); err != nil {
			return models.SaveUnchanged, err
		}
		return models.SaveCreated, nil
	}
	if err != nil {
		return models.SaveUnchanged, err
	}

	card.ID = existing.ID
	card.CreatedAt = existing.CreatedAt
	card.Back = existing.Back
	card.Front = strings.TrimSpace(card.Front)
	if card.Front == "" {
		return models.SaveUnchanged, ErrInvalidCard
	}
	if card.Front == existing.Front {
		return models.SaveUnchanged, nil
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind("UPDATE cards SET name = ? WHERE id = ?"), card.Front, card.ID)
	if err != nil {
		return models.SaveUnchanged, fmt.Errorf("failed to update card: %w", err)
	}
	return models.SaveUpdated, nil
}

// Delete removes a card
func (r *CardRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM cards WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrCardNotFound
	}
	return nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
