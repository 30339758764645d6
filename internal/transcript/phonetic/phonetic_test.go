package phonetic_test

import (
	"testing"

	"github.com/voxgate/voxgate/internal/transcript/phonetic"
)

func TestMatcher_PhoneticSoundalike(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	got, conf, ok := m.Match("cocorro", []string{"kokoro", "parakeet"})
	if !ok {
		t.Fatal("Match(cocorro) = no match, want kokoro")
	}
	if got != "kokoro" {
		t.Errorf("Match(cocorro) = %q, want kokoro", got)
	}
	if conf <= 0 || conf > 1 {
		t.Errorf("confidence = %v, want (0, 1]", conf)
	}
}

func TestMatcher_ExactSpellingIsNotAMatch(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	got, conf, ok := m.Match("kokoro", []string{"kokoro"})
	if ok {
		t.Error("exact spelling reported as a correction")
	}
	if got != "kokoro" || conf != 0 {
		t.Errorf("Match() = (%q, %v), want passthrough", got, conf)
	}
}

func TestMatcher_UnrelatedWordNoMatch(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	if _, _, ok := m.Match("weather", []string{"kokoro", "parakeet"}); ok {
		t.Error("Match(weather) found a keyword, want no match")
	}
}

func TestMatcher_MultiWordConcatComparison(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	got, _, ok := m.Match("home assistan", []string{"home assistant"})
	if !ok || got != "home assistant" {
		t.Errorf("Match(home assistan) = (%q, %v), want home assistant", got, ok)
	}
}

func TestMatcher_SharedWordIsNotEnough(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	// "open home" shares the token "home" with the keyword but is not a
	// rendition of it.
	if got, _, ok := m.Match("open home", []string{"home assistant"}); ok {
		t.Errorf("Match(open home) = %q, want no match", got)
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	if _, _, ok := m.Match("", []string{"kokoro"}); ok {
		t.Error("empty phrase matched")
	}
	if _, _, ok := m.Match("kokoro", nil); ok {
		t.Error("empty keyword list matched")
	}
}

func TestMatcher_ThresholdOptions(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(0.99))
	if got, _, ok := strict.Match("cocorro", []string{"kokoro"}); ok {
		t.Errorf("strict matcher accepted %q", got)
	}

	loose := phonetic.New(phonetic.WithPhoneticThreshold(0.5))
	if _, _, ok := loose.Match("cocorro", []string{"kokoro"}); !ok {
		t.Error("loose matcher rejected cocorro → kokoro")
	}
}
