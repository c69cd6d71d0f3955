package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound means the provider id resolves to nothing; a send addressed to
// it has no route.
var ErrNotFound = errors.New("provider not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Resolve looks up a provider by id.
func (r *Repository) Resolve(ctx context.Context, providerID int) (*Provider, error) {
	p := &Provider{}
	query := "SELECT id, owner_id, display_name FROM providers WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, providerID).Scan(&p.ID, &p.OwnerID, &p.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve provider: %w", err)
	}
	return p, nil
}
