package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the default number of characters per chunk
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the default number of characters shared by consecutive chunks
	DefaultChunkOverlap = 200
)

// DefaultSeparators is the split priority: paragraph, line, word, comma, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ",", ""}

// Chunker splits normalized document text into overlapping fixed-size segments,
// falling back through an ordered separator list when a piece is still too large.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the chunker
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length in characters
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator priority list.
// The empty separator (character-level split) is always appended if missing.
func WithSeparators(separators []string) Option {
	return func(c *Chunker) {
		if len(separators) == 0 {
			return
		}
		seps := make([]string, 0, len(separators)+1)
		seps = append(seps, separators...)
		if seps[len(seps)-1] != "" {
			seps = append(seps, "")
		}
		c.separators = seps
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave room for progress
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the configured chunk size
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk is one output segment. Start and End are rune offsets into the
// normalized text, End exclusive.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Result holds the chunks of one document
type Result struct {
	Chunks []Chunk

	// Skipped counts whitespace-only segments that were dropped
	Skipped int
}

// Texts returns the chunk contents in order
func (r *Result) Texts() []string {
	texts := make([]string, len(r.Chunks))
	for i, ch := range r.Chunks {
		texts[i] = ch.Text
	}
	return texts
}

// span is a half-open rune range [start, end)
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Normalize converts line endings to "\n". Hashing always uses the raw text.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Split normalizes text and splits it into chunks
func (c *Chunker) Split(text string) *Result {
	runes := []rune(Normalize(text))
	result := &Result{Chunks: make([]Chunk, 0)}
	if len(runes) == 0 {
		return result
	}

	spans := c.splitRange(runes, span{0, len(runes)}, c.separators)
	for _, sp := range spans {
		content := string(runes[sp.start:sp.end])
		if isBlank(content) {
			result.Skipped++
			continue
		}
		result.Chunks = append(result.Chunks, Chunk{
			Index: len(result.Chunks),
			Text:  content,
			Start: sp.start,
			End:   sp.end,
		})
	}
	return result
}

// splitRange recursively splits rng until every output span fits chunkSize
func (c *Chunker) splitRange(runes []rune, rng span, separators []string) []span {
	if rng.len() <= c.chunkSize {
		return []span{rng}
	}

	sep, rest := pickSeparator(runes[rng.start:rng.end], separators)
	pieces := splitOn(runes, rng, sep)

	out := make([]span, 0, len(pieces))
	good := make([]span, 0, len(pieces))
	for _, piece := range pieces {
		if piece.len() <= c.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = good[:0]
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, c.splitRange(runes, piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge joins contiguous small pieces into chunks of at most chunkSize,
// carrying up to overlap characters of trailing pieces into the next chunk.
func (c *Chunker) merge(pieces []span) []span {
	out := make([]span, 0)
	window := make([]span, 0, len(pieces))
	total := 0

	for _, piece := range pieces {
		if total+piece.len() > c.chunkSize && len(window) > 0 {
			out = append(out, span{window[0].start, window[len(window)-1].end})
			for len(window) > 0 && (total > c.overlap || total+piece.len() > c.chunkSize) {
				total -= window[0].len()
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += piece.len()
	}
	if len(window) > 0 {
		out = append(out, span{window[0].start, window[len(window)-1].end})
	}
	return out
}

// pickSeparator returns the first separator present in text and the
// separators after it. The empty separator always matches.
func pickSeparator(text []rune, separators []string) (string, []string) {
	s := string(text)
	for i, sep := range separators {
		if sep == "" || strings.Contains(s, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// splitOn cuts rng after each occurrence of sep so that separators stay
// attached to the preceding piece and no character is lost.
func splitOn(runes []rune, rng span, sep string) []span {
	if sep == "" {
		pieces := make([]span, 0, rng.len())
		for i := rng.start; i < rng.end; i++ {
			pieces = append(pieces, span{i, i + 1})
		}
		return pieces
	}

	sepRunes := []rune(sep)
	pieces := make([]span, 0)
	start := rng.start
	for i := rng.start; i+len(sepRunes) <= rng.end; {
		if matchAt(runes, i, sepRunes) {
			end := i + len(sepRunes)
			pieces = append(pieces, span{start, end})
			start = end
			i = end
			continue
		}
		i++
	}
	if start < rng.end {
		pieces = append(pieces, span{start, rng.end})
	}
	return pieces
}

func matchAt(runes []rune, at int, sep []rune) bool {
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

func isBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
