package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentType identifies a family of store content.
// The set is open: adapters may register types beyond the built-in ones.
type ContentType string

// Built-in content types.
const (
	ContentTypeProduct  ContentType = "product"
	ContentTypePage     ContentType = "page"
	ContentTypePolicy   ContentType = "policy"
	ContentTypeFAQ      ContentType = "faq"
	ContentTypeCategory ContentType = "category"
)

// KnownContentTypes returns the built-in content types in indexing order.
func KnownContentTypes() []ContentType {
	return []ContentType{
		ContentTypeProduct,
		ContentTypePage,
		ContentTypePolicy,
		ContentTypeFAQ,
		ContentTypeCategory,
	}
}

// IsValid reports whether the type is a non-empty lowercase token
// made of letters, digits, '-' or '_'.
func (t ContentType) IsValid() bool {
	if t == "" {
		return false
	}
	for _, r := range string(t) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// String returns the string representation.
func (t ContentType) String() string {
	return string(t)
}

// ParseContentTypes converts raw names into content types.
// Names are trimmed and lowercased; duplicates are dropped.
func ParseContentTypes(names []string) ([]ContentType, error) {
	seen := make(map[ContentType]bool, len(names))
	types := make([]ContentType, 0, len(names))
	for _, name := range names {
		ct := ContentType(strings.ToLower(strings.TrimSpace(name)))
		if !ct.IsValid() {
			return nil, fmt.Errorf("%w: content type %q", ErrInvalidInput, name)
		}
		if seen[ct] {
			continue
		}
		seen[ct] = true
		types = append(types, ct)
	}
	return types, nil
}

// ContentKey identifies one logical document.
type ContentKey struct {
	ContentType ContentType
	ContentID   string
}

// String returns "type/id".
func (k ContentKey) String() string {
	return string(k.ContentType) + "/" + k.ContentID
}

// ContentRecord is a normalised document produced by a content source.
// It is transient: owned by the source and passed by value into the pipeline.
type ContentRecord struct {
	// ContentID is unique within ContentType.
	ContentID string `json:"id" toml:"id" yaml:"id"`

	// ContentType is the family this record belongs to.
	ContentType ContentType `json:"type" toml:"type" yaml:"type"`

	// Title is the human-readable title.
	Title string `json:"title" toml:"title" yaml:"title"`

	// Body is plain text with markup already stripped.
	Body string `json:"body" toml:"body" yaml:"body"`

	// URL is the storefront location of the document.
	URL string `json:"url" toml:"url" yaml:"url"`

	// Metadata holds open key/value pairs (price, sku, ...).
	Metadata map[string]any `json:"metadata,omitempty" toml:"metadata" yaml:"metadata,omitempty"`

	// Language is a BCP 47 tag such as "en" or "de-CH".
	Language string `json:"language" toml:"language" yaml:"language"`

	// LastModified is when the source last changed the document.
	LastModified time.Time `json:"last_modified" toml:"last_modified" yaml:"last_modified"`
}

// Key returns the document identity.
func (r ContentRecord) Key() ContentKey {
	return ContentKey{ContentType: r.ContentType, ContentID: r.ContentID}
}

// Validate checks the fields the pipeline cannot work without.
func (r ContentRecord) Validate() error {
	if strings.TrimSpace(r.ContentID) == "" {
		return &ValidationError{Field: "contentId", Reason: "must not be empty"}
	}
	if r.ContentType == "" {
		return &ValidationError{Field: "contentType", Reason: "must not be empty"}
	}
	if !r.ContentType.IsValid() {
		return &ValidationError{Field: "contentType", Reason: fmt.Sprintf("invalid value %q", r.ContentType)}
	}
	if strings.TrimSpace(r.Body) == "" {
		return &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	return nil
}

// ChunkMetadata builds the metadata stored on every chunk of the record.
// Record metadata is copied and augmented with title and url.
func (r ContentRecord) ChunkMetadata() map[string]any {
	md := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		md[k] = v
	}
	if r.Title != "" {
		md[MetadataKeyTitle] = r.Title
	}
	if r.URL != "" {
		md[MetadataKeyURL] = r.URL
	}
	return md
}

// Metadata keys set by the pipeline.
const (
	MetadataKeyTitle = "title"
	MetadataKeyURL   = "url"
)

// MetadataEqual compares two metadata maps by their canonical JSON form,
// so values that went through a store round trip (int vs float64) compare equal.
func MetadataEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
