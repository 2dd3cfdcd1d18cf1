package latex

import (
	"latex-mathedit/internal/types"
)

const (
	// ErrUnbalancedBraces is reported when a closing brace has no partner or a group is left open.
	ErrUnbalancedBraces = "Unbalanced braces"
	// ErrUnbalancedDollars is reported for an odd number of $ delimiters.
	ErrUnbalancedDollars = "Unbalanced $ delimiters"
)

// Validate is a heuristic gate: it checks brace balance and $ parity only.
// Escaped characters (\{, \}, \$) are skipped. The result is advisory and
// never blocks an edit.
func Validate(s string) types.ValidationResult {
	if s == "" {
		return types.ValidationOK
	}

	depth := 0
	dollars := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return types.ValidationResult{Valid: false, Error: ErrUnbalancedBraces}
			}
		case '$':
			dollars++
		}
	}

	if depth != 0 {
		return types.ValidationResult{Valid: false, Error: ErrUnbalancedBraces}
	}
	if dollars%2 != 0 {
		return types.ValidationResult{Valid: false, Error: ErrUnbalancedDollars}
	}
	return types.ValidationOK
}
