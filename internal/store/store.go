// Package store persists the append-only answer-event log and the
// flagged-item review queue. Derived state (profiles, caches) is never
// persisted; it is rebuilt from the event log at startup.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/models"
)

// Store wraps the Postgres connection. All methods are safe for
// concurrent use through database/sql's pooling.
type Store struct {
	db *sql.DB
}

func Connect(cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &Store{db: db}, nil
}

func (s *Store) Migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS answer_events (
		id           BIGSERIAL PRIMARY KEY,
		event_id     VARCHAR(64) UNIQUE NOT NULL,
		requester_id VARCHAR(64) NOT NULL,
		subject      VARCHAR(100) NOT NULL,
		topic        VARCHAR(200),
		objective    VARCHAR(200),
		item_id      VARCHAR(64),
		selected_key VARCHAR(8),
		correct      BOOLEAN NOT NULL,
		answered_at  TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at   TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_events_requester ON answer_events(requester_id, subject);
	CREATE INDEX IF NOT EXISTS idx_events_item ON answer_events(item_id);

	CREATE TABLE IF NOT EXISTS flagged_items (
		id         BIGSERIAL PRIMARY KEY,
		subject    VARCHAR(100) NOT NULL,
		topic      VARCHAR(200),
		difficulty VARCHAR(20) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		reason     TEXT NOT NULL,
		payload    JSONB NOT NULL,
		reviewed   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flagged_reviewed ON flagged_items(reviewed);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveEvent appends one answer event. A replayed event id is a no-op so
// persistence matches the tracker's dedup semantics.
func (s *Store) SaveEvent(ctx context.Context, event models.PerformanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answer_events
			(event_id, requester_id, subject, topic, objective, item_id, selected_key, correct, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.RequesterID, event.Subject, event.Topic, event.Objective,
		nullable(event.ItemID), nullable(event.SelectedKey), event.Correct, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// LoadEvents streams the event log in insertion order, for rebuilding
// tracker state at startup.
func (s *Store) LoadEvents(ctx context.Context) ([]models.PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, requester_id, subject,
		       COALESCE(topic, ''), COALESCE(objective, ''),
		       COALESCE(item_id, ''), COALESCE(selected_key, ''),
		       correct, answered_at
		FROM answer_events
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var events []models.PerformanceRecord
	for rows.Next() {
		var e models.PerformanceRecord
		if err := rows.Scan(&e.EventID, &e.RequesterID, &e.Subject, &e.Topic, &e.Objective,
			&e.ItemID, &e.SelectedKey, &e.Correct, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FlagItem stores a degraded item with its full payload for offline
// review. Satisfies the pipeline's review sink.
func (s *Store) FlagItem(ctx context.Context, item *models.GeneratedItem, reason string) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode flagged item: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flagged_items (subject, topic, difficulty, confidence, reason, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.Subject, item.Topic, string(item.Difficulty), item.Confidence, reason, payload,
	)
	if err != nil {
		return fmt.Errorf("flag item: %w", err)
	}
	return nil
}

// FlaggedItem is one review-queue row.
type FlaggedItem struct {
	ID        int64                `json:"id"`
	Reason    string               `json:"reason"`
	Item      models.GeneratedItem `json:"item"`
	CreatedAt time.Time            `json:"created_at"`
}

// PendingReview lists unreviewed flagged items, newest first.
func (s *Store) PendingReview(ctx context.Context, limit int) ([]FlaggedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reason, payload, created_at
		FROM flagged_items
		WHERE NOT reviewed
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending review: %w", err)
	}
	defer rows.Close()

	var items []FlaggedItem
	for rows.Next() {
		var fi FlaggedItem
		var payload []byte
		if err := rows.Scan(&fi.ID, &fi.Reason, &payload, &fi.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flagged item: %w", err)
		}
		if err := json.Unmarshal(payload, &fi.Item); err != nil {
			return nil, fmt.Errorf("decode flagged item %d: %w", fi.ID, err)
		}
		items = append(items, fi)
	}
	return items, rows.Err()
}

// MarkReviewed closes a review-queue row.
func (s *Store) MarkReviewed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE flagged_items SET reviewed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
