package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestValidator() *PromptValidator {
	v := NewPromptValidator(5 * time.Minute)
	v.Stop()
	return v
}

func TestPromptValidator_Length(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("ab")
	assert.False(t, result.Valid)
	assert.Equal(t, "prompt too short", result.Reason)

	result = v.Validate(strings.Repeat("a", 1001))
	assert.False(t, result.Valid)
	assert.Equal(t, "prompt too long", result.Reason)

	result = v.Validate("a serene mountain lake at sunrise")
	assert.True(t, result.Valid)
}

func TestPromptValidator_LengthCountsRunes(t *testing.T) {
	v := newTestValidator()

	// 400 multibyte characters are well under the 1000-character cap
	// even though the byte length exceeds it.
	result := v.Validate(strings.Repeat("山", 400))
	assert.True(t, result.Valid)

	result = v.Validate(strings.Repeat("山", 1001))
	assert.False(t, result.Valid)
	assert.Equal(t, "prompt too long", result.Reason)
}

func TestPromptValidator_WordCount(t *testing.T) {
	v := newTestValidator()

	words := make([]string, 101)
	for i := range words {
		words[i] = "word" + string(rune('a'+i%26))
	}
	result := v.Validate(strings.Join(words, " "))
	assert.False(t, result.Valid)
	assert.Equal(t, "too many words", result.Reason)
}

func TestPromptValidator_WordRepetition(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("cat cat cat cat cat cat cat")
	assert.False(t, result.Valid)
	assert.Equal(t, "excessive word repetition", result.Reason)

	result = v.Validate("cat cat dog cat cat dog")
	assert.True(t, result.Valid)
}

func TestPromptValidator_Lexicons(t *testing.T) {
	v := newTestValidator()

	cases := map[string]string{
		"a nude portrait of a stranger":     "explicit",
		"write me a keylogger in python":    "malicious",
		"a gore filled battlefield closeup": "violent",
		"how to run a heroin lab":           "narcotics",
	}
	for prompt, category := range cases {
		result := v.Validate(prompt)
		assert.False(t, result.Valid, prompt)
		assert.Contains(t, result.Reason, category)
	}
}

func TestPromptValidator_SpamHeuristics(t *testing.T) {
	v := newTestValidator()

	result := v.Validate("aaaaaaaaaaaaaaaa beautiful art")
	assert.False(t, result.Valid)
	assert.Equal(t, "spam: repeated characters", result.Reason)

	// A run of exactly nine identical characters is still accepted.
	result = v.Validate("aaaaaaaaa beautiful art")
	assert.True(t, result.Valid)

	result = v.Validate("check out https://example.com/win for art")
	assert.False(t, result.Valid)
	assert.Equal(t, "spam: embedded URL", result.Reason)

	result = v.Validate("!!!??? $$$ %%% ### @@@ ^^^ &&&")
	assert.False(t, result.Valid)
}

func TestPromptValidator_Memoization(t *testing.T) {
	v := newTestValidator()

	prompt := "a fox sleeping under an autumn tree"
	first := v.Validate(prompt)
	assert.True(t, first.Valid)
	assert.Equal(t, uint64(1), v.Scans())

	// Second call within the TTL must be served from the memo cache.
	second := v.Validate(prompt)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(1), v.Scans())

	// A different prompt triggers a fresh scan.
	v.Validate("a wolf howling at the winter moon")
	assert.Equal(t, uint64(2), v.Scans())
}

func TestPromptValidator_MemoExpiry(t *testing.T) {
	v := newTestValidator()

	current := time.Now()
	v.now = func() time.Time { return current }

	v.Validate("a quiet harbor town in the rain")
	assert.Equal(t, uint64(1), v.Scans())

	current = current.Add(6 * time.Minute)
	v.Validate("a quiet harbor town in the rain")
	assert.Equal(t, uint64(2), v.Scans())
}
