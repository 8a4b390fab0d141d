package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/logger"
)

var _ driven.KnowledgeStore = (*Store)(nil)

const chunkColumns = `id, content_type, content_id, chunk_index, total_chunks, text, chunk_hash,
	word_count, embedding, embedding_model, language, metadata, source_modified,
	is_active, created_at, updated_at`

// UpsertChunk inserts or updates a chunk keyed by (content_type, content_id, chunk_hash).
// The write is a single statement, so it is atomic. A chunk whose ID belongs to a
// different row is rejected with a ConsistencyError.
func (s *Store) UpsertChunk(ctx context.Context, chunk domain.Chunk) (domain.Chunk, error) {
	metadataJSON, err := marshalMetadata(chunk.Metadata)
	if err != nil {
		return domain.Chunk{}, err
	}

	requestedID := chunk.ID
	newID := requestedID
	if newID == "" {
		newID = uuid.New().String()
	}
	now := formatTime(s.now())

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_type, content_id, chunk_hash) DO UPDATE SET
			chunk_index = excluded.chunk_index,
			total_chunks = excluded.total_chunks,
			text = excluded.text,
			word_count = excluded.word_count,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model,
			language = excluded.language,
			metadata = excluded.metadata,
			source_modified = excluded.source_modified,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
		WHERE ? = '' OR chunks.id = excluded.id
		RETURNING id, created_at, updated_at
	`, newID, string(chunk.ContentType), chunk.ContentID, chunk.ChunkIndex, chunk.TotalChunks,
		chunk.Text, chunk.ChunkHash, chunk.WordCount, float32SliceToBytes(chunk.Embedding),
		chunk.EmbeddingModel, chunk.Language, metadataJSON, formatNullableTime(chunk.SourceModified),
		boolToInt(chunk.IsActive), now, now, requestedID)

	var createdAt, updatedAt sql.NullString
	err = row.Scan(&chunk.ID, &createdAt, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Chunk{}, s.consistencyError(chunk, "row exists with a different id")
	case isUniqueViolation(err):
		return domain.Chunk{}, s.consistencyError(chunk, "id already used by another row")
	case err != nil:
		return domain.Chunk{}, fmt.Errorf("upserting chunk: %w", err)
	}

	chunk.CreatedAt = parseNullableTime(createdAt)
	chunk.UpdatedAt = parseNullableTime(updatedAt)
	return chunk, nil
}

func (s *Store) consistencyError(chunk domain.Chunk, reason string) error {
	err := &domain.ConsistencyError{Key: chunk.Key(), ChunkHash: chunk.ChunkHash, Reason: reason}
	logger.Error("sqlite: rejected chunk write: %v", err)
	return err
}

// FindByContentKey returns every chunk of a document ordered by chunk index.
func (s *Store) FindByContentKey(ctx context.Context, contentType domain.ContentType, contentID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks WHERE content_type = ? AND content_id = ?
		ORDER BY chunk_index, is_active DESC, updated_at DESC
	`, string(contentType), contentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// FindByHash returns one chunk by identity.
func (s *Store) FindByHash(ctx context.Context, contentType domain.ContentType, contentID, chunkHash string) (*domain.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks WHERE content_type = ? AND content_id = ? AND chunk_hash = ?
	`, string(contentType), contentID, chunkHash)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// FindEmbedding returns any stored embedding for the hash and model.
func (s *Store) FindEmbedding(ctx context.Context, chunkHash, model string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT embedding FROM chunks
		WHERE chunk_hash = ? AND embedding_model = ? AND embedding IS NOT NULL
		LIMIT 1
	`, chunkHash, model).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying embedding: %w", err)
	}
	return bytesToFloat32Slice(blob), nil
}

// DeactivateChunks marks inactive every active chunk of the document whose
// hash is not in keepHashes, and returns those chunks.
func (s *Store) DeactivateChunks(ctx context.Context, contentType domain.ContentType, contentID string, keepHashes []string) ([]domain.Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT ` + chunkColumns + ` FROM chunks
		WHERE content_type = ? AND content_id = ? AND is_active = 1`
	args := []any{string(contentType), contentID}
	if len(keepHashes) > 0 {
		query += ` AND chunk_hash NOT IN (` + placeholders(len(keepHashes)) + `)`
		for _, h := range keepHashes {
			args = append(args, h)
		}
	}
	query += ` ORDER BY chunk_index`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stale chunks: %w", err)
	}
	stale, err := scanChunks(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}

	now := s.now()
	ids := make([]any, 0, len(stale)+1)
	ids = append(ids, formatTime(now))
	for _, c := range stale {
		ids = append(ids, c.ID)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE chunks SET is_active = 0, updated_at = ?
		WHERE id IN (`+placeholders(len(stale))+`)
	`, ids...); err != nil {
		return nil, fmt.Errorf("deactivating chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	for i := range stale {
		stale[i].IsActive = false
		stale[i].UpdatedAt = now.UTC()
	}
	return stale, nil
}

// DeleteAllForContent hard-deletes every chunk of the document.
func (s *Store) DeleteAllForContent(ctx context.Context, contentType domain.ContentType, contentID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE content_type = ? AND content_id = ?", string(contentType), contentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted chunks: %w", err)
	}
	return int(n), nil
}

// QueryActive returns active chunks matching the filter.
func (s *Store) QueryActive(ctx context.Context, filter driven.ChunkFilter) ([]domain.Chunk, error) {
	var (
		where = []string{"is_active = 1"}
		args  []any
	)
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return nil, nil
		}
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if len(filter.ContentTypes) > 0 {
		where = append(where, "content_type IN ("+placeholders(len(filter.ContentTypes))+")")
		for _, ct := range filter.ContentTypes {
			args = append(args, string(ct))
		}
	}
	if filter.Language != "" {
		where = append(where, "language = ?")
		args = append(args, filter.Language)
	}
	if !filter.UpdatedSince.IsZero() {
		where = append(where, "updated_at >= ?")
		args = append(args, formatTime(filter.UpdatedSince))
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY content_type, content_id, chunk_index`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying active chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// Stats summarises the store contents.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	stats := domain.StoreStats{PerType: make(map[domain.ContentType]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(is_active), 0),
			COUNT(DISTINCT CASE WHEN is_active = 1 THEN content_type || '/' || content_id END)
		FROM chunks
	`).Scan(&stats.TotalChunks, &stats.ActiveChunks, &stats.Documents)
	if err != nil {
		return stats, fmt.Errorf("counting chunks: %w", err)
	}
	stats.InactiveChunks = stats.TotalChunks - stats.ActiveChunks

	rows, err := s.db.QueryContext(ctx, `
		SELECT content_type, COUNT(*) FROM chunks WHERE is_active = 1 GROUP BY content_type
	`)
	if err != nil {
		return stats, fmt.Errorf("counting chunks per type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ct string
		var n int
		if err := rows.Scan(&ct, &n); err != nil {
			return stats, fmt.Errorf("scanning chunk counts: %w", err)
		}
		stats.PerType[domain.ContentType(ct)] = n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterating chunk counts: %w", err)
	}
	return stats, nil
}

// ==================== Scanning ====================

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var (
		chunk                domain.Chunk
		contentType          string
		embeddingBlob        []byte
		metadataJSON         string
		sourceModified       sql.NullString
		createdAt, updatedAt sql.NullString
		active               int
	)

	err := row.Scan(&chunk.ID, &contentType, &chunk.ContentID, &chunk.ChunkIndex, &chunk.TotalChunks,
		&chunk.Text, &chunk.ChunkHash, &chunk.WordCount, &embeddingBlob, &chunk.EmbeddingModel,
		&chunk.Language, &metadataJSON, &sourceModified, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.ContentType = domain.ContentType(contentType)
	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
	chunk.SourceModified = parseNullableTime(sourceModified)
	chunk.IsActive = active == 1
	chunk.CreatedAt = parseNullableTime(createdAt)
	chunk.UpdatedAt = parseNullableTime(updatedAt)

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
		}
	}

	return &chunk, nil
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

func marshalMetadata(md map[string]any) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(b), nil
}
