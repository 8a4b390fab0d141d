package domain

// ChangeKind is the kind of upstream content change.
type ChangeKind int

const (
	// ChangeCreated indicates a new document.
	ChangeCreated ChangeKind = iota

	// ChangeUpdated indicates a modified document.
	ChangeUpdated

	// ChangeDeleted indicates a removed document.
	ChangeDeleted
)

// String returns the lowercase name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ContentChange is a change event emitted by a content source.
// Used for webhook-style and watch-driven incremental indexing.
type ContentChange struct {
	// Kind is the kind of change.
	Kind ChangeKind

	// Record is the affected document. For deletions only the key fields are set.
	Record ContentRecord
}
