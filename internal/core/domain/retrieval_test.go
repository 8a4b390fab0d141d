package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one rune", "a", 1},
		{"four runes", "abcd", 1},
		{"five runes", "abcde", 2},
		{"multibyte counts runes", "ääää", 1},
		{"long", strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestContextWindow_Grounded(t *testing.T) {
	empty := ContextWindow{Query: "returns"}
	assert.False(t, empty.Grounded())

	full := ContextWindow{Excerpts: []Excerpt{{ChunkID: "c1"}}}
	assert.True(t, full.Grounded())
}

func TestTypePriorities(t *testing.T) {
	p := DefaultTypePriorities()

	assert.Equal(t, 1.0, p.Priority(ContentTypePolicy))
	assert.Equal(t, 0.9, p.Priority(ContentTypeFAQ))
	assert.Greater(t, p.Priority(ContentTypeFAQ), p.Priority(ContentTypeProduct))
	assert.Equal(t, DefaultTypePriority, p.Priority(ContentType("blog")))
}

func TestRankWeights_Defaults(t *testing.T) {
	w := DefaultRankWeights()

	assert.InDelta(t, 1.0, w.Similarity+w.TypePriority+w.Freshness, 1e-9)
	assert.Greater(t, w.Similarity, w.TypePriority+w.Freshness)
	assert.Equal(t, 30*24*time.Hour, w.FreshnessHalfLife)
}

func TestRankWeights_FreshnessScore(t *testing.T) {
	w := DefaultRankWeights()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.InDelta(t, 1.0, w.FreshnessScore(now, now), 1e-9)
	assert.InDelta(t, 0.5, w.FreshnessScore(now.Add(-w.FreshnessHalfLife), now), 1e-9)
	assert.InDelta(t, 0.25, w.FreshnessScore(now.Add(-2*w.FreshnessHalfLife), now), 1e-9)
	assert.InDelta(t, 1.0, w.FreshnessScore(now.Add(time.Hour), now), 1e-9, "future timestamps clamp to now")
	assert.Equal(t, 0.0, w.FreshnessScore(time.Time{}, now))
}
