// Package dispatch paginates completion output into platform-safe message
// chunks and sequences their delivery.
package dispatch

import (
	"strings"
	"unicode/utf8"
)

const (
	// shortLimit is the largest text sent as a single message.
	shortLimit = 2000

	// chunkLimit is the accumulation threshold per chunk when paginating.
	chunkLimit = 1900

	// marker flags a hard split inside an oversized sentence. It appears at
	// the end of the piece before the seam and the start of the piece after
	// it; stripping markers from all chunks reconstructs the original text.
	marker = "..."
)

// SplitMessage splits text into deliverable chunks. Text within shortLimit
// is returned as-is. Longer text is split on sentence boundaries (". "),
// accumulating sentences until the next one would push a chunk past
// chunkLimit. A single sentence longer than chunkLimit is hard-split at the
// threshold with markers on both sides of each seam.
func SplitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= shortLimit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
	}

	// SplitAfter keeps the ". " delimiter attached, so joining the chunks
	// (markers aside) yields the original text.
	for _, sentence := range strings.SplitAfter(text, ". ") {
		n := utf8.RuneCountInString(sentence)

		if n > chunkLimit {
			flush()
			pieces := hardSplit(sentence)
			chunks = append(chunks, pieces[:len(pieces)-1]...)
			// The final piece is short; let following sentences share its chunk.
			last := pieces[len(pieces)-1]
			current.WriteString(last)
			currentLen = utf8.RuneCountInString(last)
			continue
		}

		if currentLen+n > chunkLimit {
			flush()
		}
		current.WriteString(sentence)
		currentLen += n
	}
	flush()

	return chunks
}

// hardSplit cuts an oversized sentence into chunkLimit-sized pieces, adding
// a marker after every piece that continues and before every piece that
// continues a previous one.
func hardSplit(s string) []string {
	runes := []rune(s)
	var pieces []string
	for start := 0; start < len(runes); start += chunkLimit {
		end := start + chunkLimit
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[start:end])
		if start > 0 {
			piece = marker + piece
		}
		if end < len(runes) {
			piece += marker
		}
		pieces = append(pieces, piece)
	}
	return pieces
}
