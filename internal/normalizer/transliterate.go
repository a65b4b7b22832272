package normalizer

import "strings"

// Uzbek Latin to Cyrillic mapping, based on the official alphabet
// conversion. Digraphs must be replaced before single characters.
var latinDigraphs = []struct{ latin, cyrillic string }{
	{"sh", "ш"}, {"ch", "ч"}, {"ng", "нг"}, {"gh", "ғ"},
	{"o'", "ў"}, {"g'", "ғ"},
	{"yo", "ё"}, {"ya", "я"}, {"ye", "е"},

	{"Sh", "Ш"}, {"Ch", "Ч"}, {"Ng", "Нг"}, {"Gh", "Ғ"},
	{"O'", "Ў"}, {"G'", "Ғ"},
	{"Yo", "Ё"}, {"Ya", "Я"}, {"Ye", "Е"},

	{"SH", "Ш"}, {"CH", "Ч"}, {"NG", "НГ"}, {"GH", "Ғ"},
	{"YO", "Ё"}, {"YA", "Я"}, {"YE", "Е"},
}

var latinSingles = []struct{ latin, cyrillic string }{
	{"a", "а"}, {"b", "б"}, {"d", "д"}, {"e", "е"}, {"f", "ф"},
	{"g", "г"}, {"h", "ҳ"}, {"i", "и"}, {"j", "ж"}, {"k", "к"},
	{"l", "л"}, {"m", "м"}, {"n", "н"}, {"o", "о"}, {"p", "п"},
	{"q", "қ"}, {"r", "р"}, {"s", "с"}, {"t", "т"}, {"u", "у"},
	{"v", "в"}, {"x", "х"}, {"y", "й"}, {"z", "з"},

	{"A", "А"}, {"B", "Б"}, {"D", "Д"}, {"E", "Е"}, {"F", "Ф"},
	{"G", "Г"}, {"H", "Ҳ"}, {"I", "И"}, {"J", "Ж"}, {"K", "К"},
	{"L", "Л"}, {"M", "М"}, {"N", "Н"}, {"O", "О"}, {"P", "П"},
	{"Q", "Қ"}, {"R", "Р"}, {"S", "С"}, {"T", "Т"}, {"U", "У"},
	{"V", "В"}, {"X", "Х"}, {"Y", "Й"}, {"Z", "З"},
}

// People type o' and g' with whatever apostrophe their keyboard gives
// them; all variants collapse to ' before mapping.
var apostropheVariants = []string{"’", "‘", "`", "ʻ", "ʼ"}

// LatinToCyrillic converts Uzbek Latin text to Cyrillic script.
func LatinToCyrillic(text string) string {
	result := text
	for _, v := range apostropheVariants {
		result = strings.ReplaceAll(result, v, "'")
	}
	for _, m := range latinDigraphs {
		result = strings.ReplaceAll(result, m.latin, m.cyrillic)
	}
	for _, m := range latinSingles {
		result = strings.ReplaceAll(result, m.latin, m.cyrillic)
	}
	return result
}

func isCyrillicRune(r rune) bool {
	return r >= 0x0400 && r <= 0x04FF
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// TransliterateIfLatin converts the text to Cyrillic when Latin letters
// dominate, and reports whether a conversion happened.
func TransliterateIfLatin(text string) (string, bool) {
	var cyrillic, latin int
	for _, r := range text {
		switch {
		case isCyrillicRune(r):
			cyrillic++
		case isLatinLetter(r):
			latin++
		}
	}
	if latin > cyrillic {
		return LatinToCyrillic(text), true
	}
	return text, false
}
