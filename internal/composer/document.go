// Package composer holds a composite text-with-math string and routes edits
// of its math segments through normalization and validation.
package composer

import (
	"sync"

	"latex-mathedit/internal/latex"
	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/render"
	"latex-mathedit/internal/segment"
	"latex-mathedit/internal/types"
)

// Document 混合文本文档，编辑数学片段后重新拼接
type Document struct {
	mu       sync.RWMutex
	text     string
	segs     []types.MathSegment
	renderer *render.Renderer
}

// NewDocument parses text into a Document.
func NewDocument(text string, renderer *render.Renderer) *Document {
	if renderer == nil {
		renderer = render.NewRenderer()
	}
	return &Document{
		text:     text,
		segs:     segment.Parse(text),
		renderer: renderer,
	}
}

// Text returns the current composite string.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// SetText replaces the whole document.
func (d *Document) SetText(text string) {
	segs := segment.Parse(text)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
	d.segs = segs
}

// Segments returns a copy of the parsed segments.
func (d *Document) Segments() []types.MathSegment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.MathSegment, len(d.segs))
	copy(out, d.segs)
	return out
}

// MathCount returns the number of math segments.
func (d *Document) MathCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return segment.MathCount(d.segs)
}

// EditMath normalizes content, writes it into math segment index and
// rebuilds the text. The returned ValidationResult is advisory: the edit is
// applied even when it reports a problem.
func (d *Document) EditMath(index int, content string) (types.ValidationResult, error) {
	normalized := latex.Normalize(content)

	d.mu.Lock()
	defer d.mu.Unlock()

	if index >= 0 && index < len(d.segs) && !d.segs[index].IsMath() {
		return types.ValidationResult{}, types.NewAppError(types.ErrInvalidInput,
			"segment is not math", nil)
	}
	segs, err := segment.Replace(d.segs, index, normalized)
	if err != nil {
		return types.ValidationResult{}, err
	}

	text := segment.Reconstruct(segs)
	// Edited content may itself contain delimiters; reparse so offsets and
	// boundaries describe the new text.
	d.text = text
	d.segs = segment.Parse(text)

	result := latex.Validate(normalized)
	if !result.Valid {
		logger.Debug("math edit has validation warning",
			logger.Int("segment", index), logger.String("error", result.Error))
	}
	return result, nil
}

// Preview renders the whole document.
func (d *Document) Preview() types.RenderResult {
	return d.renderer.Render(d.Text())
}

// Validate checks the whole document.
func (d *Document) Validate() types.ValidationResult {
	return latex.Validate(d.Text())
}
