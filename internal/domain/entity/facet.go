package entity

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// FacetKind identifies what a rich-text span annotates.
type FacetKind string

const (
	FacetKindLink    FacetKind = "link"
	FacetKindHashtag FacetKind = "hashtag"

	// FacetKindMention is reserved; the facet builder accepts it but no
	// matcher currently produces mention spans.
	FacetKindMention FacetKind = "mention"
)

// Span is a character-indexed range produced by the hashtag/URL matchers.
// Start and End are 1-based UTF-16 code-unit positions of the entity's first
// and last character in the post text; the matchers report position 0 when
// the entity was not found. Text carries the matched substring including its
// sigil.
type Span struct {
	Start int
	End   int
	Kind  FacetKind
	Text  string
}

// Facet is a byte-addressed span within a post's UTF-8 encoded text,
// as required by wire protocols that address rich text by byte position.
// ByteEnd is exclusive. Payload holds the URL, tag name (sigil stripped),
// or DID associated with the span.
type Facet struct {
	ByteStart int
	ByteEnd   int
	Kind      FacetKind
	Payload   string
}

// FacetIndex maps character positions of a post text to UTF-8 byte offsets.
//
// The index is a prefix-sum table of length codeUnitCount+1 over the text's
// UTF-16 code units: table[0] = 0 and table[i] is the number of UTF-8 bytes
// occupied by the first i code units. Single-byte characters contribute 1,
// surrogate halves contribute 2 each (so an emoji pair totals 4), and other
// characters contribute their measured UTF-8 encoded length.
//
// In legacy mode every code unit at or above the high-surrogate threshold is
// counted as 2 bytes, which undercounts BMP characters in the 0xE000-0xFFFF
// range. That matches the offsets already stored by live consumers of this
// wire format; NewIndex keeps it for compatibility. NewExactIndex uses the
// true UTF-8 width instead and should be preferred for new data.
type FacetIndex struct {
	table  []int
	legacy bool
}

const highSurrogateMin = 0xD800

// NewIndex builds a byte-offset index for text using the legacy
// width treatment for code units above the surrogate threshold.
func NewIndex(text string) *FacetIndex {
	return buildIndex(text, true)
}

// NewExactIndex builds a byte-offset index for text using exact UTF-8
// byte lengths for every code point.
func NewExactIndex(text string) *FacetIndex {
	return buildIndex(text, false)
}

func buildIndex(text string, legacy bool) *FacetIndex {
	units := utf16.Encode([]rune(text))
	table := make([]int, len(units)+1)

	for i, u := range units {
		table[i+1] = table[i] + unitByteLen(u, legacy)
	}

	return &FacetIndex{table: table, legacy: legacy}
}

// unitByteLen returns the number of UTF-8 bytes the given UTF-16 code unit
// contributes to the encoded text.
func unitByteLen(u uint16, legacy bool) int {
	if u < utf8.RuneSelf {
		return 1
	}
	if legacy && u >= highSurrogateMin {
		return 2
	}
	if utf16.IsSurrogate(rune(u)) {
		// Each half of a surrogate pair accounts for 2 of the 4 bytes
		// of the encoded supplementary-plane character.
		return 2
	}
	return utf8.RuneLen(rune(u))
}

// Units returns the number of UTF-16 code units the index covers.
func (ix *FacetIndex) Units() int {
	return len(ix.table) - 1
}

// ByteOffset returns the UTF-8 byte offset of the character at code-unit
// position i. Passing i outside [0, Units()] is a programmer error and
// panics; span positions come from matchers that operated on the same text.
func (ix *FacetIndex) ByteOffset(i int) int {
	return ix.table[i]
}

// Facets converts character-indexed spans into byte-addressed facets:
// byteStart = table[span.Start], byteEnd = table[span.End].
//
// A span whose computed byte start is 0 is discarded: the matchers report
// position 0 for "not found", so a computed start of 0 is indistinguishable
// from a missing match and callers must not rely on an entity literally
// beginning at byte 0 of the text. For hashtag and mention kinds the leading
// sigil is stripped from the payload. An empty input yields no output.
// Spans outside [0, Units()] are a programmer error and panic.
func (ix *FacetIndex) Facets(spans []Span) []Facet {
	var facets []Facet

	for _, s := range spans {
		byteStart := ix.table[s.Start]
		if byteStart == 0 {
			continue
		}
		byteEnd := ix.table[s.End]

		payload := s.Text
		switch s.Kind {
		case FacetKindHashtag:
			payload = strings.TrimPrefix(payload, "#")
		case FacetKindMention:
			payload = strings.TrimPrefix(payload, "@")
		}

		facets = append(facets, Facet{
			ByteStart: byteStart,
			ByteEnd:   byteEnd,
			Kind:      s.Kind,
			Payload:   payload,
		})
	}

	return facets
}
