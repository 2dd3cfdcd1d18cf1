// Package segment splits composite text into ordered text and math runs.
//
// Recognised forms, in priority order at each position:
//
//	$$...$$                display math, may span lines
//	$...$                  inline math, non-empty, no newline
//	\begin{ENV}...\end{ENV} display math kept verbatim
//
// An opener without a matching closer is plain text and scanning resumes right
// after the opener. A backslash-escaped \$ never opens math. Reconstruct is the
// inverse of Parse: Reconstruct(Parse(s)) == s for every s.
package segment

import (
	"fmt"
	"strings"

	"latex-mathedit/internal/types"
)

const beginPrefix = `\begin{`

// Parse splits text into segments in document order.
func Parse(text string) []types.MathSegment {
	var segs []types.MathSegment
	textStart := 0

	flush := func(end int) {
		if end > textStart {
			segs = append(segs, types.MathSegment{
				Type:    types.SegmentText,
				Content: text[textStart:end],
				Start:   textStart,
				End:     end,
			})
		}
	}
	emit := func(seg types.MathSegment) {
		flush(seg.Start)
		segs = append(segs, seg)
		textStart = seg.End
	}

	i := 0
	for i < len(text) {
		switch text[i] {
		case '$':
			if strings.HasPrefix(text[i:], "$$") {
				if end, ok := findDisplayClose(text, i+2); ok {
					emit(types.MathSegment{
						Type:      types.SegmentMath,
						Content:   text[i+2 : end],
						Start:     i,
						End:       end + 2,
						Delimiter: types.DelimDisplay,
					})
					i = end + 2
					continue
				}
				i += 2
				continue
			}
			if end, ok := findInlineClose(text, i+1); ok {
				emit(types.MathSegment{
					Type:      types.SegmentMath,
					Content:   text[i+1 : end],
					Start:     i,
					End:       end + 1,
					Delimiter: types.DelimInline,
				})
				i = end + 1
				continue
			}
			i++
		case '\\':
			if name, openEnd, ok := beginAt(text, i); ok {
				if end, ok := findEnvironmentEnd(text, openEnd, name); ok {
					emit(types.MathSegment{
						Type:        types.SegmentMath,
						Content:     text[i:end],
						Start:       i,
						End:         end,
						Delimiter:   types.DelimDisplay,
						Environment: name,
					})
					i = end
					continue
				}
				i = openEnd
				continue
			}
			// Skip the escaped character so \$ stays text.
			i += 2
		default:
			i++
		}
	}
	if i > len(text) {
		i = len(text)
	}
	flush(i)
	return segs
}

// Reconstruct concatenates segments, re-wrapping math in its delimiter.
// Environment blocks are written verbatim.
func Reconstruct(segs []types.MathSegment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Type == types.SegmentMath && s.Environment == "" {
			sb.WriteString(string(s.Delimiter))
			sb.WriteString(s.Content)
			sb.WriteString(string(s.Delimiter))
			continue
		}
		sb.WriteString(s.Content)
	}
	return sb.String()
}

// Replace returns a copy of segs with the content of segment index replaced
// and offsets recomputed against the reconstructed text.
func Replace(segs []types.MathSegment, index int, content string) ([]types.MathSegment, error) {
	if index < 0 || index >= len(segs) {
		return nil, types.NewAppErrorWithDetails(types.ErrNotFound, "segment index out of range",
			fmt.Sprintf("index %d, %d segments", index, len(segs)), nil)
	}
	out := make([]types.MathSegment, len(segs))
	copy(out, segs)
	out[index].Content = content
	reindex(out)
	return out, nil
}

// MathCount returns the number of math segments.
func MathCount(segs []types.MathSegment) int {
	n := 0
	for _, s := range segs {
		if s.IsMath() {
			n++
		}
	}
	return n
}

func reindex(segs []types.MathSegment) {
	pos := 0
	for i := range segs {
		n := len(segs[i].Content)
		if segs[i].Type == types.SegmentMath && segs[i].Environment == "" {
			n += 2 * len(segs[i].Delimiter)
		}
		segs[i].Start = pos
		segs[i].End = pos + n
		pos += n
	}
}

// findInlineClose finds the closing $ of inline math whose content starts at
// from. Content must be non-empty and must not contain a newline.
func findInlineClose(text string, from int) (int, bool) {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case '\n':
			return 0, false
		case '$':
			if j == from {
				return 0, false
			}
			return j, true
		}
	}
	return 0, false
}

// findDisplayClose finds the next unescaped $$ at or after from.
func findDisplayClose(text string, from int) (int, bool) {
	for j := from; j < len(text)-1; j++ {
		if text[j] == '\\' {
			j++
			continue
		}
		if text[j] == '$' && text[j+1] == '$' {
			return j, true
		}
	}
	return 0, false
}

// beginAt reports whether text[i:] starts with \begin{NAME}; it returns NAME
// and the index just past the closing brace.
func beginAt(text string, i int) (string, int, bool) {
	if !strings.HasPrefix(text[i:], beginPrefix) {
		return "", 0, false
	}
	nameStart := i + len(beginPrefix)
	end := strings.IndexAny(text[nameStart:], "}\n")
	if end <= 0 || text[nameStart+end] != '}' {
		return "", 0, false
	}
	return text[nameStart : nameStart+end], nameStart + end + 1, true
}

// findEnvironmentEnd returns the index just past the \end{name} that closes an
// environment whose body starts at from. Nested blocks of the same name are
// skipped.
func findEnvironmentEnd(text string, from int, name string) (int, bool) {
	open := `\begin{` + name + `}`
	closeTag := `\end{` + name + `}`
	depth := 1
	for j := from; j < len(text); {
		switch {
		case strings.HasPrefix(text[j:], open):
			depth++
			j += len(open)
		case strings.HasPrefix(text[j:], closeTag):
			depth--
			j += len(closeTag)
			if depth == 0 {
				return j, true
			}
		default:
			j++
		}
	}
	return 0, false
}
