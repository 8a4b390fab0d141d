// Package hasher derives content-addressed chunk fingerprints.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// Verify interface compliance.
var (
	_ driven.ContentHasher = (*Hasher)(nil)
	_ driven.PostProcessor = (*Hasher)(nil)
)

// Hash returns the lowercase hex SHA-256 of the UTF-8 bytes of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Hasher stamps ChunkHash on drafts.
type Hasher struct{}

// New creates a hasher.
func New() *Hasher {
	return &Hasher{}
}

// Name returns the processor name.
func (h *Hasher) Name() string {
	return "hasher"
}

// Hash returns the fingerprint of text.
func (h *Hasher) Hash(text string) string {
	return Hash(text)
}

// Process sets ChunkHash on every draft. It must run after a producing processor.
func (h *Hasher) Process(_ context.Context, record *domain.ContentRecord, drafts []domain.ChunkDraft) ([]domain.ChunkDraft, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}
	for i := range drafts {
		drafts[i].ChunkHash = Hash(drafts[i].Text)
	}
	return drafts, nil
}
