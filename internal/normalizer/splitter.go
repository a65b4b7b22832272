package normalizer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunk bounds: long texts split at sentence boundaries, never below
// minChunkLength unless the whole text is shorter, never above max.
// All lengths are counted in runes; post-transliteration text is
// Cyrillic, where byte length runs at twice the character count.
const minChunkLength = 2000

var sentenceEndRe = regexp.MustCompile(`[.!?]+\s+`)

// SplitText slices text into chunks of at most maxLength characters,
// preferring sentence boundaries and falling back to word boundaries for
// oversized sentences. Expanded tokens are never split because word
// boundaries are always respected.
func SplitText(text string, maxLength int) []string {
	if maxLength < minChunkLength {
		maxLength = minChunkLength
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= maxLength {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range splitSentences(text) {
		sentenceLen := utf8.RuneCountInString(sentence)
		if sentenceLen > maxLength {
			flush()
			chunks = append(chunks, splitByWords(sentence, maxLength)...)
			continue
		}

		if currentLen+sentenceLen > maxLength {
			if currentLen >= minChunkLength {
				flush()
			}
			// below the minimum the sentence is appended anyway to
			// preserve context, even if the chunk runs slightly long
		}
		current.WriteString(sentence)
		currentLen += sentenceLen
	}
	flush()

	filtered := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// splitSentences cuts text after sentence-ending punctuation, keeping
// the punctuation and trailing space with the preceding sentence.
func splitSentences(text string) []string {
	bounds := sentenceEndRe.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return []string{text}
	}
	var sentences []string
	prev := 0
	for _, b := range bounds {
		sentences = append(sentences, text[prev:b[1]])
		prev = b[1]
	}
	if prev < len(text) {
		sentences = append(sentences, text[prev:])
	}
	return sentences
}

func splitByWords(text string, maxLength int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)
		if wordLen > maxLength {
			flush()
			runes := []rune(word)
			for len(runes) > maxLength {
				chunks = append(chunks, string(runes[:maxLength]))
				runes = runes[maxLength:]
			}
			if len(runes) > 0 {
				current.WriteString(string(runes))
				currentLen = len(runes)
			}
			continue
		}

		if currentLen+wordLen+1 > maxLength {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
			currentLen++
		}
		current.WriteString(word)
		currentLen += wordLen
	}
	flush()
	return chunks
}
