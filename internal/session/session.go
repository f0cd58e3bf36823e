// Package session owns the per-conversation state: one analyzed
// prescription, its image, and the append-only chat history. All state
// is explicit, with nothing in ambient globals. Each session is
// exclusively owned by one conversation; concurrent use of the same
// session requires external serialization.
package session

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/chat"
)

// Session is the unit of conversation state.
type Session struct {
	ID           string           `json:"id"`
	ImageHash    string           `json:"image_hash"`
	ImageDataURL string           `json:"-"`
	Analysis     *analysis.Result `json:"analysis"`
	History      []chat.Turn      `json:"history"`
	CreatedAt    string           `json:"created_at"`

	store *Store
}

// ImageHash is the deduplication key: uploading a previously-seen image
// restores its session instead of re-running the pipeline.
func ImageHash(imageData []byte) string {
	sum := sha256.Sum256(imageData)
	return hex.EncodeToString(sum[:])
}

// AppendTurns records a completed chat exchange: in memory and, when
// the session is store-backed, durably. Implements chat.Recorder.
func (s *Session) AppendTurns(user, assistant chat.Turn) error {
	s.History = append(s.History, user, assistant)
	if s.store == nil {
		return nil
	}
	if err := s.store.appendMessage(s.ID, user); err != nil {
		return err
	}
	return s.store.appendMessage(s.ID, assistant)
}

// SaveAnalysis persists the current analysis state, used after
// human-resolution operations mutate it.
func (s *Session) SaveAnalysis() error {
	if s.store == nil {
		return nil
	}
	return s.store.updateAnalysis(s.ID, s.Analysis)
}
