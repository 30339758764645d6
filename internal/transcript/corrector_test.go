package transcript

import (
	"testing"
)

func TestCorrector_DisabledPassesThrough(t *testing.T) {
	c := New(Config{Enabled: false, Keywords: []string{"kokoro"}})
	got := c.Correct("turn on cocorro please")
	if got != "turn on cocorro please" {
		t.Errorf("Correct() = %q, disabled corrector must not touch text", got)
	}
}

func TestCorrector_CorrectsSoundalike(t *testing.T) {
	c := New(Config{Enabled: true, Keywords: []string{"kokoro"}})
	got, corrections := c.CorrectDetailed("switch to cocorro now")
	if got != "switch to kokoro now" {
		t.Errorf("CorrectDetailed() = %q, want %q", got, "switch to kokoro now")
	}
	if len(corrections) != 1 {
		t.Fatalf("corrections = %d, want 1", len(corrections))
	}
	if corrections[0].Original != "cocorro" || corrections[0].Corrected != "kokoro" {
		t.Errorf("correction = %+v", corrections[0])
	}
	if corrections[0].Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", corrections[0].Confidence)
	}
}

func TestCorrector_ExactWordUntouched(t *testing.T) {
	c := New(Config{Enabled: true, Keywords: []string{"kokoro"}})
	got, corrections := c.CorrectDetailed("kokoro is running")
	if got != "kokoro is running" {
		t.Errorf("CorrectDetailed() = %q, exact keyword must stay", got)
	}
	if len(corrections) != 0 {
		t.Errorf("corrections = %v, want none for exact spelling", corrections)
	}
}

func TestCorrector_UnrelatedWordsUntouched(t *testing.T) {
	c := New(Config{Enabled: true, Keywords: []string{"kokoro", "parakeet"}})
	in := "what is the weather like today"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct() = %q, want unchanged %q", got, in)
	}
}

func TestCorrector_MultiWordKeywordWins(t *testing.T) {
	c := New(Config{Enabled: true, Keywords: []string{"home assistant"}})
	got, corrections := c.CorrectDetailed("open home assistan for me")
	if got != "open home assistant for me" {
		t.Errorf("CorrectDetailed() = %q", got)
	}
	if len(corrections) != 1 {
		t.Fatalf("corrections = %d, want 1", len(corrections))
	}
	if corrections[0].Original != "home assistan" {
		t.Errorf("Original = %q, want the two-word window", corrections[0].Original)
	}
}

func TestCorrector_SetKeywordsSwapsVocabulary(t *testing.T) {
	c := New(Config{Enabled: true, Keywords: []string{"kokoro"}})
	c.SetKeywords([]string{"parakeet"})

	if got := c.Correct("use parrakeet for speech"); got != "use parakeet for speech" {
		t.Errorf("Correct() = %q after SetKeywords", got)
	}
	if got := c.Correct("use cocorro for speech"); got != "use cocorro for speech" {
		t.Errorf("old keyword still corrected: %q", got)
	}
}

func TestCorrector_EmptyInput(t *testing.T) {
	c := New(Config{Enabled: true, Keywords: []string{"kokoro"}})
	if got := c.Correct(""); got != "" {
		t.Errorf("Correct(\"\") = %q, want empty", got)
	}
}
