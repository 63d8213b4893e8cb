package entity

import (
	"regexp"
	"unicode/utf16"
)

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s]+`)
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
)

// ExtractURLs returns every http(s) URL in text, in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// ExtractSpans runs the independent URL and hashtag matchers over the raw
// post text and returns their matches as spans in the 1-based code-unit
// coordinates FacetIndex.Facets consumes: Start is the position of the
// entity's first character, End the position of its last.
func ExtractSpans(text string) []Span {
	byteToUnit := unitOffsets(text)

	var spans []Span
	for _, m := range urlPattern.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{
			Start: byteToUnit[m[0]] + 1,
			End:   byteToUnit[m[1]],
			Kind:  FacetKindLink,
			Text:  text[m[0]:m[1]],
		})
	}
	for _, m := range hashtagPattern.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{
			Start: byteToUnit[m[0]] + 1,
			End:   byteToUnit[m[1]],
			Kind:  FacetKindHashtag,
			Text:  text[m[0]:m[1]],
		})
	}
	return spans
}

// unitOffsets maps every UTF-8 byte offset of text that starts a rune
// (plus the end offset) to its UTF-16 code-unit index.
func unitOffsets(text string) map[int]int {
	offsets := make(map[int]int, len(text)+1)
	unit := 0
	for i, r := range text {
		offsets[i] = unit
		unit += len(utf16.Encode([]rune{r}))
	}
	offsets[len(text)] = unit
	return offsets
}
