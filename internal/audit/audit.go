// Package audit records task mutations accepted by the task service.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"

	"github.com/fentz26/morningtrio/internal/store"
)

// Outcomes recorded with each entry.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Writer appends audit entries for state-mutating requests.
type Writer struct {
	store *store.Store
}

// NewWriter creates a new audit writer.
func NewWriter(s *store.Store) *Writer {
	return &Writer{store: s}
}

// Record writes an entry. Inputs are stored as a hash only. A nil Writer
// records nothing.
func (w *Writer) Record(ctx context.Context, userID, action string, inputs interface{}, outcome, taskID, details string) {
	if w == nil {
		return
	}
	if _, err := w.store.WriteAudit(ctx, userID, action, hashInputs(inputs), outcome, taskID, details); err != nil {
		log.Printf("audit: %s by %s: %v", action, userID, err)
	}
}

// hashInputs creates a SHA256 hash of the inputs.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
