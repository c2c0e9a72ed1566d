package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// StripAccents removes combining marks, "Número" becomes "Numero".
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName lowercases, strips accents and removes whitespace so labels can be
// compared loosely.
func NormalizeName(name string) string {
	name = StripAccents(strings.ToLower(name))
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// CamelKey turns a human label into a camelCase key, "Número do Processo:" becomes
// "numeroDoProcesso". Labels without letters or digits produce an empty key.
func CamelKey(label string) string {
	words := strings.FieldsFunc(StripAccents(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out strings.Builder
	for i, word := range words {
		word = strings.ToLower(word)
		if i == 0 {
			out.WriteString(word)
			continue
		}
		first := []rune(word)
		first[0] = unicode.ToUpper(first[0])
		out.WriteString(string(first))
	}
	return out.String()
}

// ParseCount parses a count as the portal prints it, "1.234" is 1234.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.Atoi(s)
}
