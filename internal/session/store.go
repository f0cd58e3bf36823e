package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/chat"
	"github.com/rxlens/rxlens/internal/db"
)

// ErrNotFound is returned for unknown session IDs and unseen image hashes.
var ErrNotFound = errors.New("session not found")

// Store persists sessions and their chat history in SQLite.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create persists a freshly analyzed prescription as a new session.
func (s *Store) Create(ctx context.Context, imageHash, imageDataURL string, res *analysis.Result) (*Session, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshalling analysis: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prescriptions (id, image_hash, image_data_url, analysis)
		VALUES (?, ?, ?, ?)`,
		id, imageHash, imageDataURL, string(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting prescription: %w", err)
	}

	return s.Get(ctx, id)
}

// Get loads a session and its full chat history.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, image_hash, image_data_url, analysis, created_at
		FROM prescriptions WHERE id = ?`, id)
	return s.scanSession(ctx, row)
}

// FindByImageHash restores the session for a previously-seen image, or
// ErrNotFound for a new one.
func (s *Store) FindByImageHash(ctx context.Context, hash string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, image_hash, image_data_url, analysis, created_at
		FROM prescriptions WHERE image_hash = ?`, hash)
	return s.scanSession(ctx, row)
}

func (s *Store) scanSession(ctx context.Context, row *sql.Row) (*Session, error) {
	var sess Session
	var raw string
	err := row.Scan(&sess.ID, &sess.ImageHash, &sess.ImageDataURL, &raw, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning prescription: %w", err)
	}

	var res analysis.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("unmarshalling stored analysis: %w", err)
	}
	sess.Analysis = &res

	history, err := s.history(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.History = history
	sess.store = s
	return &sess, nil
}

func (s *Store) history(ctx context.Context, id string) ([]chat.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text FROM chat_messages
		WHERE prescription_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying chat history: %w", err)
	}
	defer rows.Close()

	var turns []chat.Turn
	for rows.Next() {
		var t chat.Turn
		if err := rows.Scan(&t.Role, &t.Text); err != nil {
			return nil, fmt.Errorf("scanning chat turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Summary is one row of the session listing.
type Summary struct {
	ID             string                  `json:"id"`
	CreatedAt      string                  `json:"created_at"`
	AmbiguityState analysis.AmbiguityState `json:"ambiguity_state,omitempty"`
	MedicineCount  int                     `json:"medicine_count"`
}

// List returns all stored sessions, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis, created_at FROM prescriptions
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing prescriptions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var raw string
		if err := rows.Scan(&sum.ID, &raw, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning prescription row: %w", err)
		}
		var res analysis.Result
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			sum.AmbiguityState = res.AmbiguityState
			sum.MedicineCount = len(res.Extraction.Medicines)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a session and, via cascade, its chat history.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting prescription: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) appendMessage(id string, turn chat.Turn) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (prescription_id, role, text) VALUES (?, ?, ?)`,
		id, turn.Role, turn.Text)
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}
	return nil
}

func (s *Store) updateAnalysis(id string, res *analysis.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshalling analysis: %w", err)
	}
	_, err = s.db.Exec(`
		UPDATE prescriptions SET analysis = ?, updated_at = datetime('now') WHERE id = ?`,
		string(raw), id)
	if err != nil {
		return fmt.Errorf("updating analysis: %w", err)
	}
	return nil
}
