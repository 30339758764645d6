// Package chunker converts an incremental LLM token stream into speakable
// phrase chunks for text-to-speech synthesis.
//
// The splitter has two competing goals: emit phrases aggressively enough that
// the first audio plays while the model is still generating, but never split
// mid-sentence, inside a code block or URL, after an abbreviation, or in the
// middle of a numbered-list marker. Chunks that would be too short to speak
// naturally ("Sure!") are merged into the following sentence instead of being
// emitted on their own.
//
// A Chunker is not safe for concurrent use; the LLM pipeline feeds it from a
// single goroutine.
package chunker

import (
	"strings"
)

const (
	// minWords is the minimum word count of an emitted chunk. Shorter
	// candidates are merged into the following sentence.
	minWords = 4

	// maxChars is the hard upper bound on chunk length. Buffers growing past
	// it are force-split at the last whitespace.
	maxChars = 200

	// pauseSearchFloor is the buffer length above which a pause character
	// (comma, semicolon, colon, em dash) is an acceptable split point when no
	// sentence terminator exists yet.
	pauseSearchFloor = 100
)

// abbreviations are tokens whose trailing period never ends a sentence.
// Matched case-insensitively against the word ending at the period.
var abbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "prof.": true,
	"sr.": true, "jr.": true, "e.g.": true, "i.e.": true, "etc.": true,
	"vs.": true, "approx.": true, "dept.": true, "est.": true, "inc.": true,
	"ltd.": true, "st.": true, "ave.": true, "blvd.": true,
}

// Chunk is one speakable unit of output. Indices increase monotonically
// between resets.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// Chunker accumulates streamed text and cuts it into [Chunk] values at
// sentence and pause boundaries.
type Chunker struct {
	buffer string
	index  int
}

// New creates an empty Chunker.
func New() *Chunker {
	return &Chunker{}
}

// Feed appends text to the buffer and returns every chunk that became
// speakable. With final set, any trimmed remainder is flushed as a last chunk
// and the buffer is cleared.
func (c *Chunker) Feed(text string, final bool) []Chunk {
	c.buffer += text

	var out []Chunk
	searchFrom := 0
	for {
		// Never split inside an unclosed fenced code block.
		if strings.Count(c.buffer, "```")%2 != 0 {
			break
		}

		split, ok := findSplit(c.buffer, searchFrom)
		if !ok {
			break
		}
		candidate := strings.TrimSpace(c.buffer[:split])
		if wordCount(candidate) >= minWords {
			out = append(out, Chunk{Text: candidate, Index: c.index})
			c.index++
			c.buffer = c.buffer[split:]
			searchFrom = 0
			continue
		}

		// Too short to speak on its own. Leave it in the buffer and search
		// past this boundary so it merges with the next sentence.
		if split <= searchFrom {
			break
		}
		searchFrom = split
	}

	if final {
		if rest := strings.TrimSpace(c.buffer); rest != "" {
			out = append(out, Chunk{Text: rest, Index: c.index})
			c.index++
		}
		c.buffer = ""
	}
	return out
}

// Reset discards buffered text and restarts chunk numbering at zero.
func (c *Chunker) Reset() {
	c.buffer = ""
	c.index = 0
}

// Buffered returns the text accumulated but not yet emitted.
func (c *Chunker) Buffered() string {
	return c.buffer
}

// findSplit locates the next admissible split point in buf at or after from.
// The returned index is exclusive: buf[:split] is the candidate chunk, with
// the terminator and its trailing whitespace included.
func findSplit(buf string, from int) (int, bool) {
	if split, ok := findSentenceEnd(buf, from); ok {
		return split, true
	}

	if len(buf) > pauseSearchFloor {
		if split, ok := findPause(buf); ok {
			return split, true
		}
	}

	if len(buf) > maxChars {
		return forceSplit(buf), true
	}
	return 0, false
}

// findSentenceEnd scans forward for a sentence terminator ('.', '!', '?', or
// "...") that genuinely ends a sentence: not inside a URL, not a
// numbered-list marker, not an abbreviation's final period.
func findSentenceEnd(buf string, from int) (int, bool) {
	for i := from; i < len(buf); i++ {
		switch buf[i] {
		case '!', '?':
			if insideURL(buf, i) {
				continue
			}
			return consumeBoundary(buf, i+1), true

		case '.':
			if insideURL(buf, i) {
				continue
			}
			// Ellipsis ends at its last dot.
			if strings.HasPrefix(buf[i:], "...") {
				return consumeBoundary(buf, i+3), true
			}
			if isListMarker(buf, i) {
				continue
			}
			if isAbbreviation(buf, i) {
				continue
			}

			// A lone period needs whitespace after it (possibly past a
			// closing quote or bracket), or end-of-buffer with enough words
			// before it. Otherwise it is a decimal point or version dot.
			j := i + 1
			for j < len(buf) {
				n := closingLen(buf, j)
				if n == 0 {
					break
				}
				j += n
			}
			if j >= len(buf) {
				if wordCount(buf[:i+1]) >= minWords {
					return len(buf), true
				}
				continue
			}
			if isSpaceByte(buf[j]) {
				return consumeBoundary(buf, i+1), true
			}
		}
	}
	return 0, false
}

// findPause searches backward from the length cap for a pause character whose
// prefix is long enough to speak.
func findPause(buf string) (int, bool) {
	limit := len(buf)
	if limit > maxChars {
		limit = maxChars
	}
	for i := limit - 1; i > 0; i-- {
		n := pauseLen(buf, i)
		if n == 0 {
			continue
		}
		if wordCount(buf[:i+n]) < minWords {
			continue
		}
		return consumeWhitespace(buf, i+n), true
	}
	return 0, false
}

// forceSplit cuts at the last whitespace before the length cap, or at the cap
// itself when the range has no whitespace at all (one enormous token).
func forceSplit(buf string) int {
	for i := maxChars - 1; i > 0; i-- {
		if isSpaceByte(buf[i]) {
			return i + 1
		}
	}
	return maxChars
}

// consumeBoundary advances past closing quote characters and whitespace
// following a sentence terminator so the split lands on the next sentence's
// first character.
func consumeBoundary(buf string, i int) int {
	for i < len(buf) {
		n := closingLen(buf, i)
		if n == 0 {
			break
		}
		i += n
	}
	return consumeWhitespace(buf, i)
}

func consumeWhitespace(buf string, i int) int {
	for i < len(buf) && isSpaceByte(buf[i]) {
		i++
	}
	return i
}

// insideURL reports whether position i sits inside a URL segment. It walks
// backward to the previous whitespace looking for the literal substring
// "http". A sentence that ends with the bare word "http" is misclassified;
// that quirk is kept deliberately to match the observed splitter behaviour.
func insideURL(buf string, i int) bool {
	for k := i - 1; k >= 0; k-- {
		if isSpaceByte(buf[k]) {
			return false
		}
		if strings.HasPrefix(buf[k:], "http") {
			return true
		}
	}
	return false
}

// isListMarker reports whether the period at i terminates a numbered-list
// marker like "1. " at the start of a line or after whitespace.
func isListMarker(buf string, i int) bool {
	if i+1 >= len(buf) || buf[i+1] != ' ' {
		return false
	}
	k := i - 1
	for k >= 0 && buf[k] >= '0' && buf[k] <= '9' {
		k--
	}
	if k == i-1 {
		return false // no digits before the period
	}
	return k < 0 || isSpaceByte(buf[k])
}

// isAbbreviation reports whether the period at i is the final period of a
// known abbreviation.
func isAbbreviation(buf string, i int) bool {
	start := i
	for start > 0 && isWordByte(buf[start-1]) {
		start--
	}
	return abbreviations[strings.ToLower(buf[start:i+1])]
}

// pauseLen returns the byte length of a pause character at i: 1 for ',', ';',
// ':' and 3 for the em dash, 0 when i is not a pause character.
func pauseLen(buf string, i int) int {
	switch buf[i] {
	case ',', ';', ':':
		return 1
	}
	if strings.HasPrefix(buf[i:], "—") { // —
		return 3
	}
	return 0
}

// closingLen returns the byte length of a closing quote or bracket at i:
// 1 for '"', '\'', ')' and 3 for the right double quotation mark, 0 otherwise.
func closingLen(buf string, i int) int {
	switch buf[i] {
	case '"', '\'', ')':
		return 1
	}
	if strings.HasPrefix(buf[i:], "”") { // ”
		return 3
	}
	return 0
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// isWordByte reports whether b may appear inside an abbreviation token
// (letters and interior periods).
func isWordByte(b byte) bool {
	return b == '.' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
