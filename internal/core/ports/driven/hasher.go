package driven

// ContentHasher derives the content-addressed fingerprint of chunk text.
// It is a dedup key, not a security primitive.
type ContentHasher interface {
	// Hash returns a fixed-length lowercase hex fingerprint of text.
	Hash(text string) string
}
