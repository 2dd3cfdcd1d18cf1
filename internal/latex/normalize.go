// Package latex canonicalizes and checks the LaTeX produced by the math input
// widget. Both entry points are total: they never panic and never return errors.
package latex

import (
	"regexp"
	"strings"

	"latex-mathedit/internal/logger"
)

// EulerArtifact is the command the math widget emits for Euler's number.
const EulerArtifact = `\exponentialE`

var (
	eulerRe       = regexp.MustCompile(`\\exponentialE\b`)
	mleftRe       = regexp.MustCompile(`\\m(left|right)\b`)
	mathrmRe      = regexp.MustCompile(`\\mathrm\{([^{}]*)\}`)
	operatorRe    = regexp.MustCompile(`\\operatorname\{(sin|cos|tan|log|ln|exp)\}([A-Za-z]?)`)
	singleGroupRe = regexp.MustCompile(`\{([A-Za-z0-9])\}`)
	spaceRe       = regexp.MustCompile(`\s+`)
	braceSpaceRe  = regexp.MustCompile(`(\{) | (\})`)
	fracRe        = regexp.MustCompile(`\\d?frac`)
	scriptDigitRe = regexp.MustCompile(`([\^_])\{([0-9])\}`)
	emptyGroupRe  = regexp.MustCompile(`\{\}`)
)

// FixEuler replaces the widget's Euler's-number command with a literal e.
func FixEuler(raw string) string {
	return eulerRe.ReplaceAllString(raw, "e")
}

// Normalize maps raw widget output to canonical LaTeX.
//
// The rule chain runs until the text stops changing, so
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("latex normalization failed, returning input", logger.Any("panic", r))
			out = strings.TrimSpace(raw)
		}
	}()

	cur := raw
	// Every rule either shortens the text or, for \frac, fires at most once per
	// occurrence, so the loop terminates well before this bound.
	for pass := 0; pass <= len(raw)+16; pass++ {
		next := normalizeOnce(cur)
		if next == cur {
			return next
		}
		cur = next
	}
	return cur
}

func normalizeOnce(s string) string {
	s = FixEuler(s)
	s = mleftRe.ReplaceAllString(s, `\${1}`)
	s = mathrmRe.ReplaceAllString(s, `\text{${1}}`)
	s = replaceOperators(s)
	s = replaceLooseGroups(s, singleGroupRe, "${1}")
	s = spaceRe.ReplaceAllString(s, " ")
	s = braceSpaceRe.ReplaceAllString(s, "${1}${2}")
	s = insertFracBraces(s)
	s = scriptDigitRe.ReplaceAllString(s, "${1}${2}")
	s = replaceLooseGroups(s, emptyGroupRe, "")
	return strings.TrimSpace(s)
}

// replaceOperators turns \operatorname{sin} into \sin. A letter directly after
// the group is separated by a space so it does not extend the control word.
func replaceOperators(s string) string {
	return operatorRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := operatorRe.FindStringSubmatch(m)
		if sub[2] != "" {
			return `\` + sub[1] + " " + sub[2]
		}
		return `\` + sub[1]
	})
}

// replaceLooseGroups rewrites brace groups matched by re unless the group is
// the argument of a command, a script, or follows another group.
func replaceLooseGroups(s string, re *regexp.Regexp, template string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		if isArgumentPosition(s, m[0]) {
			continue
		}
		sb.WriteString(s[last:m[0]])
		sb.Write(re.ExpandString(nil, template, s, m))
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// isArgumentPosition reports whether the brace at index i opens an argument.
// A single space between the command and its argument is allowed.
func isArgumentPosition(s string, i int) bool {
	if i > 1 && s[i-1] == ' ' {
		i--
	}
	if i == 0 {
		return false
	}
	switch c := s[i-1]; {
	case c == '}' || c == ']' || c == '^' || c == '_' || c == '\\':
		return true
	case isLetter(c):
		j := i - 1
		for j >= 0 && isLetter(s[j]) {
			j--
		}
		return j >= 0 && s[j] == '\\'
	}
	return false
}

// insertFracBraces adds the opening brace a widget sometimes drops after
// \frac or \dfrac. It only fires when the remaining text has a closing brace
// with no partner, which is the brace the missing one would pair with. One
// brace is inserted per call; Normalize repeats until nothing changes.
func insertFracBraces(s string) string {
	for _, loc := range fracRe.FindAllStringIndex(s, -1) {
		k := loc[1]
		if k >= len(s) {
			continue
		}
		if c := s[k]; c == '{' || c == ' ' || isLetter(c) {
			continue
		}
		if hasUnmatchedClose(s[k:]) {
			return s[:k] + "{" + s[k:]
		}
	}
	return s
}

func hasUnmatchedClose(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return true
			}
		}
	}
	return false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
