// Package transcript corrects final STT transcripts against a configured
// vocabulary before they reach the language model.
//
// STT engines reliably mangle project-specific words ("kokoro" becomes
// "cocorro", persona names become soundalikes). The corrector slides n-gram
// windows over the transcript and replaces windows that phonetically match a
// configured keyword or persona name. Correction is purely in-process and
// cheap enough to run on every final transcript.
package transcript

import (
	"strings"
	"sync"

	"github.com/voxgate/voxgate/internal/transcript/phonetic"
)

// Correction records one replacement applied to a transcript.
type Correction struct {
	// Original is the transcript window that was replaced.
	Original string
	// Corrected is the keyword it was replaced with.
	Corrected string
	// Confidence is the Jaro-Winkler score of the match.
	Confidence float64
}

// Config configures a [Corrector]. Zero thresholds select the matcher
// defaults (0.70 phonetic, 0.85 fuzzy).
type Config struct {
	// Enabled switches correction on. A disabled corrector passes text
	// through unchanged.
	Enabled bool

	// Keywords is the vocabulary to correct toward.
	Keywords []string

	// PhoneticThreshold and FuzzyThreshold tune match acceptance.
	PhoneticThreshold float64
	FuzzyThreshold    float64
}

// Corrector applies phonetic keyword correction to transcripts. Safe for
// concurrent use; the keyword set can be swapped on config reload.
type Corrector struct {
	matcher *phonetic.Matcher
	enabled bool

	mu       sync.RWMutex
	keywords []string
	maxWords int
}

// New creates a Corrector.
func New(cfg Config) *Corrector {
	var opts []phonetic.Option
	if cfg.PhoneticThreshold > 0 {
		opts = append(opts, phonetic.WithPhoneticThreshold(cfg.PhoneticThreshold))
	}
	if cfg.FuzzyThreshold > 0 {
		opts = append(opts, phonetic.WithFuzzyThreshold(cfg.FuzzyThreshold))
	}
	c := &Corrector{
		matcher: phonetic.New(opts...),
		enabled: cfg.Enabled,
	}
	c.SetKeywords(cfg.Keywords)
	return c
}

// SetKeywords replaces the vocabulary. Blank entries are dropped.
func (c *Corrector) SetKeywords(keywords []string) {
	cleaned := make([]string, 0, len(keywords))
	maxWords := 1
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cleaned = append(cleaned, k)
		if n := len(strings.Fields(k)); n > maxWords {
			maxWords = n
		}
	}
	c.mu.Lock()
	c.keywords = cleaned
	c.maxWords = maxWords
	c.mu.Unlock()
}

// Correct returns the corrected transcript. Equivalent to CorrectDetailed
// without the correction list.
func (c *Corrector) Correct(text string) string {
	corrected, _ := c.CorrectDetailed(text)
	return corrected
}

// CorrectDetailed slides n-gram windows (longest first, so multi-word
// keywords win over partial single-word matches) over the transcript and
// replaces phonetic matches. It returns the corrected text and the applied
// replacements.
func (c *Corrector) CorrectDetailed(text string) (string, []Correction) {
	if !c.enabled {
		return text, nil
	}
	c.mu.RLock()
	keywords := c.keywords
	maxWords := c.maxWords
	c.mu.RUnlock()

	if len(keywords) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			keyword, conf, ok := c.matcher.Match(window, keywords)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(keyword)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  keyword,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(output, " "), corrections
}
