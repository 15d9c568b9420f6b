package indexer

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

var orderPattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:lecture|lec|session|week|class|l|w)?[ _-]?0*(\d{1,3})(?:[^0-9]|$)`)

// ParseSessionOrder reads the session number from a lecture file name such
// as "lecture-03-trees.pdf" or "week2.md". It returns false when the name
// carries no number.
func ParseSessionOrder(name string) (int, bool) {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	m := orderPattern.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// TitleFromFileName turns "lecture-03_binary-trees.md" into
// "Lecture 03 Binary Trees".
func TitleFromFileName(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return "Untitled lecture"
	}
	return strings.Join(words, " ")
}
