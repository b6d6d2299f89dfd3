package security

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	minPromptLength = 3
	maxPromptLength = 1000
	maxPromptWords  = 100
	// maxWordRepeats is the largest run of one word repeated back to
	// back that is still accepted.
	maxWordRepeats = 5
	// maxSpecialCharRatio is the accepted share of non-alphanumeric,
	// non-space characters.
	maxSpecialCharRatio = 0.4
	// maxCharRepeats is the largest run of one character repeated back
	// to back that is still accepted.
	maxCharRepeats = 9
)

// lexicon is one disallowed-content category with its matching pattern.
type lexicon struct {
	category string
	pattern  *regexp.Regexp
}

var disallowedLexicons = []lexicon{
	{"explicit", regexp.MustCompile(`(?i)\b(nude|naked|nsfw|porn|explicit sex)\b`)},
	{"malicious", regexp.MustCompile(`(?i)\b(malware|ransomware|keylogger|phishing (page|site)|credential stealer)\b`)},
	{"violent", regexp.MustCompile(`(?i)\b(behead|dismember|torture scene|mass shooting|gore)\b`)},
	{"narcotics", regexp.MustCompile(`(?i)\b(methamphetamine|cook meth|fentanyl synthesis|heroin lab)\b`)},
}

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

type cachedResult struct {
	result    ValidationResult
	expiresAt time.Time
}

// PromptValidator validates generation prompts. Results are memoized by
// content hash for a short TTL so hot prompts are not re-scanned.
type PromptValidator struct {
	ttl   time.Duration
	now   func() time.Time
	scans atomic.Uint64

	mu    sync.RWMutex
	cache map[string]*cachedResult

	stopCh chan struct{}
	once   sync.Once
}

// NewPromptValidator creates a prompt validator with the given memo TTL.
func NewPromptValidator(ttl time.Duration) *PromptValidator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	v := &PromptValidator{
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]*cachedResult),
		stopCh: make(chan struct{}),
	}
	go v.reap(time.Minute)
	return v
}

// Validate checks one prompt against all rules and returns the first
// rejection reason found.
func (v *PromptValidator) Validate(text string) ValidationResult {
	hash := contentHash(text)

	v.mu.RLock()
	cached, ok := v.cache[hash]
	v.mu.RUnlock()
	if ok && v.now().Before(cached.expiresAt) {
		return cached.result
	}

	result := v.scan(text)

	v.mu.Lock()
	v.cache[hash] = &cachedResult{result: result, expiresAt: v.now().Add(v.ttl)}
	v.mu.Unlock()

	return result
}

// Scans returns how many full scans have run, bypassed cache hits
// excluded.
func (v *PromptValidator) Scans() uint64 {
	return v.scans.Load()
}

// Stop stops the background cache reaper.
func (v *PromptValidator) Stop() {
	v.once.Do(func() { close(v.stopCh) })
}

func (v *PromptValidator) scan(text string) ValidationResult {
	v.scans.Add(1)

	trimmed := strings.TrimSpace(text)
	runes := utf8.RuneCountInString(trimmed)
	if runes < minPromptLength {
		return ValidationResult{Valid: false, Reason: "prompt too short"}
	}
	if runes > maxPromptLength {
		return ValidationResult{Valid: false, Reason: "prompt too long"}
	}

	words := strings.Fields(trimmed)
	if len(words) > maxPromptWords {
		return ValidationResult{Valid: false, Reason: "too many words"}
	}
	if repeatedWordRun(words) > maxWordRepeats {
		return ValidationResult{Valid: false, Reason: "excessive word repetition"}
	}

	for _, lex := range disallowedLexicons {
		if lex.pattern.MatchString(trimmed) {
			return ValidationResult{Valid: false, Reason: "disallowed content: " + lex.category}
		}
	}

	if longestCharRun(trimmed) > maxCharRepeats {
		return ValidationResult{Valid: false, Reason: "spam: repeated characters"}
	}
	if urlPattern.MatchString(trimmed) {
		return ValidationResult{Valid: false, Reason: "spam: embedded URL"}
	}
	if specialCharRatio(trimmed) > maxSpecialCharRatio {
		return ValidationResult{Valid: false, Reason: "spam: excessive special characters"}
	}

	return ValidationResult{Valid: true}
}

func (v *PromptValidator) reap(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			now := v.now()
			v.mu.Lock()
			for k, c := range v.cache {
				if now.After(c.expiresAt) {
					delete(v.cache, k)
				}
			}
			v.mu.Unlock()
		}
	}
}

// repeatedWordRun returns the longest run of one word repeated back to
// back, case-insensitively.
func repeatedWordRun(words []string) int {
	longest, run := 0, 0
	prev := ""
	for _, w := range words {
		w = strings.ToLower(w)
		if w == prev {
			run++
		} else {
			run = 1
			prev = w
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// longestCharRun returns the longest run of one character repeated back
// to back.
func longestCharRun(text string) int {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func specialCharRatio(text string) float64 {
	if text == "" {
		return 0
	}
	special := 0
	total := 0
	for _, r := range text {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	return float64(special) / float64(total)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
