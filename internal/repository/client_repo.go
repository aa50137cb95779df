package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enerflow/reconciler/internal/domain"
)

type ClientRepo struct {
	db DBTX
}

func NewClientRepo(db DBTX) *ClientRepo {
	return &ClientRepo{db: db}
}

func (r *ClientRepo) GetByID(ctx context.Context, clientID string) (*domain.Client, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT client_id, name, email, created_at FROM clients WHERE client_id = ?", clientID))
}

func (r *ClientRepo) FindByName(ctx context.Context, name string) (*domain.Client, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT client_id, name, email, created_at FROM clients WHERE name = ?", name))
}

// GetOrCreate looks a client up by name and lazily creates it when absent.
// This is the only write path for clients outside explicit contract creation.
func (r *ClientRepo) GetOrCreate(ctx context.Context, name string) (*domain.Client, error) {
	existing, err := r.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	client := &domain.Client{
		ClientID:  uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO clients (client_id, name, email, created_at) VALUES (?,?,?,?)",
		client.ClientID, client.Name, nullString(client.Email),
		client.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return client, nil
}

func (r *ClientRepo) scanOne(row *sql.Row) (*domain.Client, error) {
	var c domain.Client
	var email sql.NullString
	var createdAt string
	err := row.Scan(&c.ClientID, &c.Name, &email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	c.Email = stringOr(email)
	c.CreatedAt = mustTime(createdAt)
	return &c, nil
}
