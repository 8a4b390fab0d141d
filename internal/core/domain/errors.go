package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfiguration indicates a setting outside its allowed range.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrIndexingInProgress indicates a pass over the same content type is running.
	ErrIndexingInProgress = errors.New("indexing in progress")

	// ErrSourceNotRegistered indicates no content source serves a content type.
	ErrSourceNotRegistered = errors.New("content source not registered")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrStoreUnavailable indicates the knowledge store cannot be reached.
	ErrStoreUnavailable = errors.New("knowledge store unavailable")

	// ErrRateLimited indicates the remote API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient marks failures that may succeed on retry.
	ErrTransient = errors.New("transient service error")

	// ErrConsistency marks uniqueness-invariant violations.
	ErrConsistency = errors.New("consistency violation")

	// ErrEmbeddingModelMismatch marks queries embedded with a different model than the index.
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")
)

// ValidationError reports a malformed ContentRecord. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid content record: %s", e.Field)
	}
	return fmt.Sprintf("invalid content record: %s %s", e.Field, e.Reason)
}

// Is matches ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConfigurationError reports a rejected setting. Values are never clamped.
type ConfigurationError struct {
	Setting string
	Value   any
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Setting, e.Value, e.Reason)
}

// Is matches ErrInvalidConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// TransientServiceError wraps a network or rate-limit failure of a remote service.
type TransientServiceError struct {
	// Service names the failing collaborator (e.g. "openai-embeddings").
	Service string

	// RetryAfter is the server-suggested wait, zero when unknown.
	RetryAfter time.Duration

	Err error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Service, e.Err)
}

func (e *TransientServiceError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransient.
func (e *TransientServiceError) Is(target error) bool {
	return target == ErrTransient
}

// ConsistencyError reports a write that would violate the
// (contentType, contentId, chunkHash) uniqueness invariant.
type ConsistencyError struct {
	Key       ContentKey
	ChunkHash string
	Reason    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation for %s hash %s: %s", e.Key, e.ChunkHash, e.Reason)
}

// Is matches ErrConsistency.
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrConsistency
}

// EmbeddingModelMismatchError reports a query embedded in a different space than the index.
type EmbeddingModelMismatchError struct {
	IndexModel string
	QueryModel string
}

func (e *EmbeddingModelMismatchError) Error() string {
	return fmt.Sprintf("embedding model mismatch: index built with %q, query uses %q", e.IndexModel, e.QueryModel)
}

// Is matches ErrEmbeddingModelMismatch.
func (e *EmbeddingModelMismatchError) Is(target error) bool {
	return target == ErrEmbeddingModelMismatch
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
