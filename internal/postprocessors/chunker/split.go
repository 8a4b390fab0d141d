package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// Separators placed before a unit when it follows another unit in the same chunk.
const (
	joinParagraph = "\n\n"
	joinWord      = " "
	joinNone      = ""
)

// unit is the smallest piece the packer places into a chunk.
type unit struct {
	text string
	join string
}

// Normalize collapses whitespace runs to single spaces inside paragraphs
// and keeps paragraph breaks as a blank line.
func Normalize(body string) string {
	return strings.Join(paragraphs(body), joinParagraph)
}

func paragraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	raw := paragraphBreak.Split(body, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(whitespaceRun.ReplaceAllString(p, " "))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Split cuts body into drafts of at most maxChars runes.
//
// Boundaries are chosen at paragraphs first, then sentences, then words.
// A single token longer than maxChars is hard-cut at rune boundaries.
// Each chunk after the first starts with up to overlapChars runes from the
// tail of the previous chunk, trimmed forward to a word boundary.
// TotalChunks is stamped on every draft; ChunkHash is left empty.
func Split(body string, maxChars, overlapChars int) []domain.ChunkDraft {
	if maxChars <= 0 {
		maxChars = domain.DefaultChunkSize
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 4
	}

	units := segment(paragraphs(body), maxChars)
	if len(units) == 0 {
		return nil
	}

	texts := pack(units, maxChars, overlapChars)

	drafts := make([]domain.ChunkDraft, len(texts))
	for i, text := range texts {
		drafts[i] = domain.ChunkDraft{
			Text:        text,
			ChunkIndex:  i,
			TotalChunks: len(texts),
			WordCount:   len(strings.Fields(text)),
		}
	}
	return drafts
}

// segment breaks paragraphs into units no longer than maxChars.
func segment(paras []string, maxChars int) []unit {
	var units []unit
	for _, p := range paras {
		join := joinParagraph
		for _, sentence := range sentences(p) {
			if runeLen(sentence) <= maxChars {
				units = append(units, unit{text: sentence, join: join})
				join = joinWord
				continue
			}
			for _, word := range strings.Fields(sentence) {
				if runeLen(word) <= maxChars {
					units = append(units, unit{text: word, join: join})
					join = joinWord
					continue
				}
				for i, piece := range hardCut(word, maxChars) {
					if i > 0 {
						join = joinNone
					}
					units = append(units, unit{text: piece, join: join})
				}
				join = joinWord
			}
		}
	}
	return units
}

// sentences splits a whitespace-normalised paragraph after '.', '!' or '?'
// followed by a space. Closing quotes and brackets stay with their sentence.
func sentences(p string) []string {
	var out []string
	start := 0
	runes := []rune(p)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}
		if end < len(runes) && runes[end] == ' ' {
			out = append(out, string(runes[start:end]))
			start = end + 1
			i = end
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

func hardCut(word string, maxChars int) []string {
	runes := []rune(word)
	pieces := make([]string, 0, len(runes)/maxChars+1)
	for len(runes) > maxChars {
		pieces = append(pieces, string(runes[:maxChars]))
		runes = runes[maxChars:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

// pack greedily fills chunks with units and seeds each new chunk with overlap.
func pack(units []unit, maxChars, overlapChars int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
		}
		cur.Reset()
		curLen = 0
	}

	for _, u := range units {
		n := runeLen(u.text)
		if curLen > 0 && curLen+runeLen(u.join)+n <= maxChars {
			cur.WriteString(u.join)
			cur.WriteString(u.text)
			curLen += runeLen(u.join) + n
			continue
		}

		var seed string
		if curLen > 0 {
			seed = overlapTail(cur.String(), overlapChars, maxChars-n-runeLen(u.join))
			flush()
		}
		if seed != "" {
			cur.WriteString(seed)
			cur.WriteString(u.join)
			curLen = runeLen(seed) + runeLen(u.join)
		}
		cur.WriteString(u.text)
		curLen += n
	}
	flush()
	return chunks
}

// overlapTail returns at most want runes from the end of text, starting at a
// word boundary and no longer than room. Returns "" when no whole word fits.
func overlapTail(text string, want, room int) string {
	if want > room {
		want = room
	}
	if want <= 0 {
		return ""
	}
	runes := []rune(text)
	start := len(runes) - want
	if start < 0 {
		start = 0
	}
	if start > 0 && !unicode.IsSpace(runes[start-1]) {
		// Mid-word: move forward past the partial word.
		for start < len(runes) && !unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return strings.TrimSpace(string(runes[start:]))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
