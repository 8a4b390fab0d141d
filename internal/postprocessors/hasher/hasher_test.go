package hasher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

func TestHash(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Hash("abc"))
	assert.Len(t, Hash(""), 64)
	assert.Equal(t, Hash("Returns policy"), Hash("Returns policy"))
	assert.NotEqual(t, Hash("Returns policy"), Hash("Returns policy."))
}

func TestHasher_Process(t *testing.T) {
	h := New()
	drafts := []domain.ChunkDraft{{Text: "one"}, {Text: "two"}}

	out, err := h.Process(context.Background(), &domain.ContentRecord{}, drafts)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, Hash("one"), out[0].ChunkHash)
	assert.Equal(t, Hash("two"), out[1].ChunkHash)
	assert.Equal(t, "hasher", h.Name())
}

func TestHasher_Process_NilRecord(t *testing.T) {
	_, err := New().Process(context.Background(), nil, nil)
	assert.Error(t, err)
}
