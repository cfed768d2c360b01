package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recomplejos/court-booking/internal/model"
)

// ErrFacilityNotFound is returned when no facility exists for an ID.
var ErrFacilityNotFound = errors.New("facility not found")

// FacilityRepo provides data access to the facilities table.  The
// operator panel edits a facility as one document, so the whole
// configuration is persisted as a JSON column rather than spread over
// normalized tables.
type FacilityRepo struct {
	db *sql.DB
}

// NewFacilityRepo returns a new FacilityRepo bound to the provided database.
func NewFacilityRepo(db *sql.DB) *FacilityRepo { return &FacilityRepo{db: db} }

// GetByID loads one facility configuration.  Returns
// ErrFacilityNotFound when the ID is unknown.
func (r *FacilityRepo) GetByID(ctx context.Context, id string) (*model.Facility, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT config FROM facilities WHERE id = ?`, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrFacilityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query facility: %w", err)
	}
	var f model.Facility
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode facility %q: %w", id, err)
	}
	f.ID = id
	return &f, nil
}

// Upsert stores the full configuration document for a facility,
// creating the row on first save.
func (r *FacilityRepo) Upsert(ctx context.Context, f *model.Facility) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode facility: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO facilities (id, config) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE config = VALUES(config)`,
		f.ID, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert facility: %w", err)
	}
	return nil
}
