package normalizer

import (
	"strings"
	"unicode"
)

// Uzbek letter names used when spelling out acronyms.
var letterNamesCyrillic = map[rune]string{
	'А': "а", 'Б': "бе", 'В': "ве", 'Г': "ге", 'Д': "де", 'Е': "е",
	'Ё': "ё", 'Ж': "же", 'З': "зе", 'И': "и", 'Й': "й", 'К': "ка",
	'Л': "эл", 'М': "эм", 'Н': "эн", 'О': "о", 'П': "пе", 'Р': "эр",
	'С': "эс", 'Т': "те", 'У': "у", 'Ф': "эф", 'Х': "ха", 'Ҳ': "ҳа",
	'Ц': "це", 'Ч': "че", 'Ш': "ша", 'Ъ': "ъ", 'Ь': "ь", 'Э': "э",
	'Ю': "ю", 'Я': "я", 'Ғ': "ға", 'Қ': "қа", 'Ў': "ў",
}

var letterNamesLatin = map[rune]string{
	'A': "а", 'B': "бе", 'C': "се", 'D': "де", 'E': "е", 'F': "эф",
	'G': "ге", 'H': "аш", 'I': "и", 'J': "же", 'K': "ка", 'L': "эл",
	'M': "эм", 'N': "эн", 'O': "о", 'P': "пе", 'Q': "қа", 'R': "эр",
	'S': "эс", 'T': "те", 'U': "у", 'V': "ве", 'W': "дабл ю",
	'X': "экс", 'Y': "уай", 'Z': "зе",
}

// SpellOutAcronym renders a word letter by letter, dash-joined:
// "USA" -> "у-эс-а", "НАТО" -> "эн-а-те-о".
func SpellOutAcronym(word string) string {
	letters := make([]string, 0, len(word))
	for _, r := range word {
		if name, ok := letterNamesCyrillic[r]; ok {
			letters = append(letters, name)
		} else if name, ok := letterNamesLatin[r]; ok {
			letters = append(letters, name)
		} else {
			letters = append(letters, strings.ToLower(string(r)))
		}
	}
	return strings.Join(letters, "-")
}

// ExpandAcronyms spells out all-uppercase words of two or more letters.
// Single capitals, mixed-case words and uppercase runs glued to
// lowercase suffixes ("НАТОда") are left alone.
func ExpandAcronyms(text string) string {
	words := strings.Split(text, " ")
	for i, word := range words {
		prefix, core, suffix := trimNonLetters(word)
		if isAcronym(core) {
			words[i] = prefix + SpellOutAcronym(core) + suffix
		}
	}
	return strings.Join(words, " ")
}

func isAcronym(word string) bool {
	runes := []rune(word)
	if len(runes) < 2 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) || !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func trimNonLetters(word string) (prefix, core, suffix string) {
	runes := []rune(word)
	start, end := 0, len(runes)
	for start < end && !unicode.IsLetter(runes[start]) {
		start++
	}
	for end > start && !unicode.IsLetter(runes[end-1]) {
		end--
	}
	return string(runes[:start]), string(runes[start:end]), string(runes[end:])
}
