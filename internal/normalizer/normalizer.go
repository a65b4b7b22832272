// Package normalizer prepares Uzbek text for speech synthesis: script
// transliteration, number and acronym expansion, and length-bounded
// chunking. Everything here is deterministic and side-effect-free, which
// keeps cache fingerprints stable across processes.
package normalizer

import (
	"strings"
	"unicode"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
)

type Options struct {
	// TriggerHashtag is stripped from channel posts before synthesis.
	TriggerHashtag string
	MaxChunkLength int
}

type Result struct {
	Text     string
	Chunks   []string
	WasLatin bool
}

// Normalize runs the full pipeline: cleanup, validation, acronym
// spell-out, number expansion, Latin->Cyrillic transliteration,
// lowercasing, chunk segmentation. Returns models.ErrInvalidInput when
// nothing synthesizable remains.
func Normalize(raw string, opts Options) (*Result, error) {
	cleaned := Cleanup(raw, opts.TriggerHashtag)
	if !hasLetters(cleaned) {
		return nil, models.ErrInvalidInput
	}

	text := ExpandAcronyms(cleaned)
	text = ExpandNumbers(text)
	text, wasLatin := TransliterateIfLatin(text)
	text = strings.TrimSpace(strings.ToLower(text))
	if !hasLetters(text) {
		return nil, models.ErrInvalidInput
	}

	maxLen := opts.MaxChunkLength
	if maxLen <= 0 {
		maxLen = 3000
	}
	chunks := SplitText(text, maxLen)
	if len(chunks) == 0 {
		return nil, models.ErrInvalidInput
	}

	return &Result{Text: text, Chunks: chunks, WasLatin: wasLatin}, nil
}

// Cleanup strips the trigger hashtag (any casing), turns newlines into
// sentence pauses and collapses whitespace and repeated periods.
func Cleanup(text, hashtag string) string {
	result := text
	if hashtag != "" {
		for _, variant := range []string{hashtag, strings.ToUpper(hashtag), strings.ToLower(hashtag)} {
			result = strings.ReplaceAll(result, variant, "")
		}
	}

	result = strings.ReplaceAll(result, "\r", ". ")
	result = strings.ReplaceAll(result, "\n", ". ")
	result = strings.Join(strings.Fields(result), " ")

	for strings.Contains(result, "..") {
		result = strings.ReplaceAll(result, "..", ".")
	}
	result = strings.ReplaceAll(result, ". . ", ". ")

	return strings.TrimSpace(result)
}

func hasLetters(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
