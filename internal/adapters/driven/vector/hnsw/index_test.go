package hnsw

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

func meta(ct, lang string) driven.VectorMetadata {
	return driven.VectorMetadata{ContentType: ct, ContentID: ct + "-1", Language: lang}
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0, 0}, meta("policy", "en")))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0, 1, 0}, meta("faq", "en")))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{0.9, 0.1, 0}, meta("page", "en")))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, driven.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
	assert.Equal(t, "c", hits[1].ChunkID)
	assert.Less(t, hits[1].Similarity, hits[0].Similarity)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 3, idx.Dimension())
}

func TestIndex_SearchEmpty(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5, driven.VectorFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_UpsertReplaces(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, meta("page", "en")))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}, meta("page", "en")))

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, idx.Orphans())

	hits, err := idx.Search(ctx, []float32{0, 1}, 5, driven.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
}

func TestIndex_Delete(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, meta("page", "en")))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0.8, 0.2}, meta("page", "en")))

	require.NoError(t, idx.Delete(ctx, "a"))
	require.NoError(t, idx.Delete(ctx, "unknown"))

	hits, err := idx.Search(ctx, []float32{1, 0}, 5, driven.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ChunkID)
}

func TestIndex_SearchFilter(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, idx.Upsert(ctx, fmt.Sprintf("en-%d", i), []float32{1, float32(i) / 100}, meta("page", "en")))
	}
	de := meta("page", "de")
	de.Scope = "store-ch"
	require.NoError(t, idx.Upsert(ctx, "de-0", []float32{0, 1}, de))

	hits, err := idx.Search(ctx, []float32{1, 0}, 3, driven.VectorFilter{Language: "de"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "de-0", hits[0].ChunkID)

	hits, err = idx.Search(ctx, []float32{1, 0}, 3, driven.VectorFilter{Scope: "store-ch"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = idx.Search(ctx, []float32{1, 0}, 3, driven.VectorFilter{Scope: "other"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_SearchFilterFindsIsolatedMatch(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		v := []float32{1, float32(i) / 1000, 0.01}
		require.NoError(t, idx.Upsert(ctx, fmt.Sprintf("en-%03d", i), v, meta("faq", "en")))
	}
	require.NoError(t, idx.Upsert(ctx, "de-0", []float32{0.6, 0, 0.8}, meta("policy", "de")))
	require.NoError(t, idx.Upsert(ctx, "de-1", []float32{0, 1, 0}, meta("policy", "de")))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 5, driven.VectorFilter{Language: "de"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "de-0", hits[0].ChunkID)
	assert.InDelta(t, 0.6, hits[0].Similarity, 1e-5)
	assert.Equal(t, "de-1", hits[1].ChunkID)

	hits, err = idx.Search(ctx, []float32{1, 0, 0}, 1, driven.VectorFilter{Language: "de"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "de-0", hits[0].ChunkID)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	idx, err := New("", WithDimension(3))
	require.NoError(t, err)

	ctx := context.Background()
	err = idx.Upsert(ctx, "a", []float32{1, 0}, meta("page", "en"))
	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0, 0}, meta("page", "en")))
	_, err = idx.Search(ctx, []float32{1}, 1, driven.VectorFilter{})
	assert.ErrorAs(t, err, &dimErr)
}

func TestIndex_RejectsEmptyInput(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, idx.Upsert(ctx, "", []float32{1}, meta("page", "en")))
	assert.Error(t, idx.Upsert(ctx, "a", nil, meta("page", "en")))
}

func TestIndex_CompactsOrphans(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		require.NoError(t, idx.Upsert(ctx, "same", []float32{1, float32(i)}, meta("page", "en")))
	}

	assert.Equal(t, 1, idx.Len())
	assert.Less(t, idx.Orphans(), 65)

	hits, err := idx.Search(ctx, []float32{1, 199}, 1, driven.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "same", hits[0].ChunkID)
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	idx, err := New(path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0, 0}, meta("policy", "en")))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0, 1, 0}, meta("faq", "de")))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{0, 0, 1}, meta("faq", "en")))
	require.NoError(t, idx.Delete(ctx, "c"))
	require.NoError(t, idx.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, 0, reopened.Orphans())
	assert.Equal(t, 3, reopened.Dimension())

	hits, err := reopened.Search(ctx, []float32{0, 1, 0}, 1, driven.VectorFilter{Language: "de"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ChunkID)
}

func TestIndex_SaveWaitsForFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	idx, err := New(path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), "a", []float32{1, 0}, meta("page", "en")))

	other := flock.New(path + ".lock")
	require.NoError(t, other.Lock())

	done := make(chan error, 1)
	go func() { done <- idx.Save() }()

	select {
	case <-done:
		t.Fatal("save finished while another process held the lock")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, other.Unlock())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("save did not finish after the lock was released")
	}
	require.NoError(t, idx.Close())
}

func TestIndex_Closed(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	ctx := context.Background()
	assert.ErrorIs(t, idx.Upsert(ctx, "a", []float32{1}, meta("page", "en")), ErrClosed)
	assert.ErrorIs(t, idx.Delete(ctx, "a"), ErrClosed)
	_, err = idx.Search(ctx, []float32{1}, 1, driven.VectorFilter{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity(0))
	assert.Equal(t, 0.0, similarity(1.5))
	assert.InDelta(t, 0.25, similarity(0.75), 1e-9)
}
