package normalizer

import (
	"regexp"
	"strconv"
	"strings"
)

var ones = [10]string{"", "бир", "икки", "уч", "тўрт", "беш", "олти", "етти", "саккиз", "тўққиз"}

var tens = map[int64]string{
	10: "ўн", 20: "йигирма", 30: "ўттиз", 40: "қирқ", 50: "эллик",
	60: "олтмиш", 70: "етмиш", 80: "саксон", 90: "тўқсон",
}

// NumberToWords renders an integer as Uzbek Cyrillic words.
func NumberToWords(num int64) string {
	if num == 0 {
		return "нол"
	}
	if num < 0 {
		return "минус " + NumberToWords(-num)
	}

	if num >= 1_000_000_000 {
		result := NumberToWords(num/1_000_000_000) + " миллиард"
		if rem := num % 1_000_000_000; rem > 0 {
			result += " " + NumberToWords(rem)
		}
		return result
	}

	if num >= 1_000_000 {
		result := NumberToWords(num/1_000_000) + " миллион"
		if rem := num % 1_000_000; rem > 0 {
			result += " " + NumberToWords(rem)
		}
		return result
	}

	if num >= 1000 {
		thousands := num / 1000
		result := "минг"
		if thousands > 1 {
			result = NumberToWords(thousands) + " минг"
		}
		if rem := num % 1000; rem > 0 {
			result += " " + NumberToWords(rem)
		}
		return result
	}

	if num >= 100 {
		hundreds := num / 100
		result := "юз"
		if hundreds > 1 {
			result = ones[hundreds] + " юз"
		}
		if rem := num % 100; rem > 0 {
			result += " " + NumberToWords(rem)
		}
		return result
	}

	if num >= 10 {
		result := tens[(num/10)*10]
		if d := num % 10; d > 0 {
			result += " " + ones[d]
		}
		return result
	}

	return ones[num]
}

var (
	ordinalRe = regexp.MustCompile(`(\d+)-`)
	numberRe  = regexp.MustCompile(`\d+[.,]?\d*`)
)

// ExpandNumbers replaces every number in the text with its Uzbek word
// form. Ordinals written as "<number>-" come first ("9-yanvar" becomes
// "тўққиз инчи yanvar"); decimals read the separator as "вергул".
func ExpandNumbers(text string) string {
	result := ordinalRe.ReplaceAllStringFunc(text, func(m string) string {
		numStr := strings.TrimSuffix(m, "-")
		num, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return m
		}
		return NumberToWords(num) + " инчи "
	})

	return numberRe.ReplaceAllStringFunc(result, func(m string) string {
		if strings.ContainsAny(m, ".,") {
			return expandDecimal(m)
		}
		num, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return m
		}
		return NumberToWords(num)
	})
}

func expandDecimal(numStr string) string {
	normalized := strings.NewReplacer(".", "|", ",", "|").Replace(numStr)
	parts := strings.Split(normalized, "|")
	words := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		num, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			words = append(words, part)
			continue
		}
		words = append(words, NumberToWords(num))
	}
	return strings.Join(words, " вергул ")
}
