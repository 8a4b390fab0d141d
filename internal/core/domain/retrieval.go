package domain

import (
	"math"
	"time"
	"unicode/utf8"
)

// RetrievalContext scopes one retrieval call.
type RetrievalContext struct {
	// Language restricts candidates to one language when set.
	Language string

	// ContentTypePreference is ranked with top priority when set.
	ContentTypePreference ContentType

	// MaxTokens bounds the assembled context window.
	MaxTokens int

	// Scope is an opaque tenant token passed through to the vector index.
	Scope string
}

// Excerpt is one chunk included in a context window, with provenance.
type Excerpt struct {
	ChunkID     string
	ContentType ContentType
	ContentID   string
	ChunkIndex  int
	Title       string
	URL         string
	Language    string
	Text        string
	Tokens      int
	Similarity  float64
	Score       float64
	UpdatedAt   time.Time
}

// ContextWindow is the bounded, ordered set of excerpts for one model call.
// An empty window means no grounding was found.
type ContextWindow struct {
	Query       string
	Excerpts    []Excerpt
	TotalTokens int
	MaxTokens   int

	// Candidates is the number of vector hits considered before ranking.
	Candidates int
}

// Grounded reports whether any excerpt was selected.
func (w *ContextWindow) Grounded() bool {
	return len(w.Excerpts) > 0
}

// EstimateTokens approximates the model token count of text at four runes per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TypePriorities weights content types during re-ranking, in [0, 1].
type TypePriorities map[ContentType]float64

// DefaultTypePriority applies to content types missing from the table.
const DefaultTypePriority = 0.3

// DefaultTypePriorities ranks policy and FAQ content above marketing copy.
func DefaultTypePriorities() TypePriorities {
	return TypePriorities{
		ContentTypePolicy:   1.0,
		ContentTypeFAQ:      0.9,
		ContentTypePage:     0.6,
		ContentTypeProduct:  0.5,
		ContentTypeCategory: 0.4,
	}
}

// Priority returns the weight for a content type.
func (p TypePriorities) Priority(ct ContentType) float64 {
	if v, ok := p[ct]; ok {
		return v
	}
	return DefaultTypePriority
}

// RankWeights combine the re-ranking signals. Similarity is the primary signal.
type RankWeights struct {
	Similarity   float64
	TypePriority float64
	Freshness    float64

	// FreshnessHalfLife is the age at which the freshness signal halves.
	FreshnessHalfLife time.Duration
}

// DefaultRankWeights returns the default re-ranking weights.
func DefaultRankWeights() RankWeights {
	return RankWeights{
		Similarity:        0.75,
		TypePriority:      0.15,
		Freshness:         0.10,
		FreshnessHalfLife: 30 * 24 * time.Hour,
	}
}

// FreshnessScore maps an update time to (0, 1], halving every half-life.
func (w RankWeights) FreshnessScore(updated, now time.Time) float64 {
	if updated.IsZero() || w.FreshnessHalfLife <= 0 {
		return 0
	}
	age := now.Sub(updated)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, float64(age)/float64(w.FreshnessHalfLife))
}
