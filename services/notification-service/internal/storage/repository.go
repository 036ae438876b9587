package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/santiagopena171/app-agenda/libs/db"
)

//go:embed schema.sql
var schema string

// ErrNoChat is returned when a business has no linked Telegram chat, or a chat no business.
var ErrNoChat = errors.New("telegram chat not linked")

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type Notification struct {
	EventID       string
	AppointmentID string
	BusinessID    string
	Kind          string
	ChatID        int64
	Body          string
	Provider      string
	Status        string
	ErrorReason   string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	var chatID *int64
	if n.ChatID != 0 {
		chatID = &n.ChatID
	}
	var reason *string
	if n.ErrorReason != "" {
		reason = &n.ErrorReason
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, appointment_id, business_id, kind, chat_id, body, provider, status, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.EventID, n.AppointmentID, n.BusinessID, n.Kind, chatID, n.Body, n.Provider, n.Status, reason)
	return err
}

func (r *Repository) ChatForBusiness(ctx context.Context, businessID string) (int64, error) {
	var chatID *int64
	err := r.pool.QueryRow(ctx, `
		SELECT telegram_chat_id FROM businesses WHERE business_id = $1
	`, businessID).Scan(&chatID)
	if db.IsNotFound(err) || (err == nil && chatID == nil) {
		return 0, fmt.Errorf("%w: business %s", ErrNoChat, businessID)
	}
	if err != nil {
		return 0, err
	}
	return *chatID, nil
}

func (r *Repository) BusinessForChat(ctx context.Context, chatID int64) (string, error) {
	var businessID string
	err := r.pool.QueryRow(ctx, `
		SELECT business_id FROM businesses WHERE telegram_chat_id = $1
	`, chatID).Scan(&businessID)
	if db.IsNotFound(err) {
		return "", fmt.Errorf("%w: chat %d", ErrNoChat, chatID)
	}
	return businessID, err
}

// LinkChat binds a business to the chat that receives its notifications.
func (r *Repository) LinkChat(ctx context.Context, businessID, name string, chatID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO businesses (business_id, name, telegram_chat_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id) DO UPDATE
		SET name = EXCLUDED.name, telegram_chat_id = EXCLUDED.telegram_chat_id, updated_at = now()
	`, businessID, name, chatID)
	return err
}
