package kb

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1500

	// defaultOverlapPercent is the share of a chunk's tail carried into the
	// next chunk so passages spanning a boundary stay retrievable.
	defaultOverlapPercent = 15

	// splitSearchWindow is how far back from the size limit a natural
	// boundary is searched before falling back to a hard split.
	splitSearchWindow = 300
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// sentenceEnders mark positions where a chunk may end mid-paragraph. The
// fullwidth terminators cover CJK text, which carries no space after
// punctuation.
var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n", "。", "！", "？"}

// Chunker splits document text into overlapping passages bounded by
// maxSize characters. Splits prefer paragraph boundaries, then sentence
// boundaries, and only fall back to a hard character split when a single
// sentence exceeds the limit.
type Chunker struct {
	maxSize int
	overlap int
}

// ChunkerOption configures a [Chunker].
type ChunkerOption func(*Chunker)

// WithOverlapPercent sets the boundary overlap as a percentage of the chunk
// size. Default: 15.
func WithOverlapPercent(pct int) ChunkerOption {
	return func(c *Chunker) {
		if pct >= 0 && pct < 50 {
			c.overlap = c.maxSize * pct / 100
		}
	}
}

// NewChunker creates a Chunker with the given maximum chunk size in
// characters. A non-positive size selects [DefaultChunkSize].
func NewChunker(maxSize int, opts ...ChunkerOption) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	c := &Chunker{
		maxSize: maxSize,
		overlap: maxSize * defaultOverlapPercent / 100,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Split divides text into chunks of at most the configured size. Adjacent
// chunks share the trailing overlap of the previous chunk. Empty input
// yields no chunks.
func (c *Chunker) Split(text string) []string {
	text = normalize(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.maxSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.maxSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.findSplit(text, start, runeStart(text, end))
		}
		if end <= start {
			// The size limit is smaller than the rune at start; take it whole.
			_, size := utf8.DecodeRuneInString(text[start:])
			end = start + size
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}

		next := runeStart(text, end-c.overlap)
		if next <= start {
			// Overlap would stall the scan; drop it for this boundary.
			next = end
		}
		start = next
	}
	return chunks
}

// findSplit returns the best split position in (start, limit], preferring a
// paragraph break, then a sentence end, then the hard limit. limit must sit
// on a rune boundary.
func (c *Chunker) findSplit(text string, start, limit int) int {
	searchFrom := limit - splitSearchWindow
	if searchFrom < start {
		searchFrom = start
	}
	searchFrom = runeStart(text, searchFrom)
	window := text[searchFrom:limit]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return searchFrom + idx + 2
	}

	best := -1
	for _, end := range sentenceEnders {
		if idx := strings.LastIndex(window, end); idx >= 0 && idx+len(end) > best {
			best = idx + len(end)
		}
	}
	if best > 0 {
		return searchFrom + best
	}

	return limit
}

// runeStart backs i up to the start of the rune it points into so byte-index
// slicing never cuts a multi-byte character.
func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// normalize collapses runs of blank lines and horizontal whitespace while
// preserving paragraph structure.
func normalize(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
