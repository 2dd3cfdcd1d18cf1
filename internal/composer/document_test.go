package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latex-mathedit/internal/types"
)

func TestEditAreaFormula(t *testing.T) {
	doc := NewDocument(`The area is $A=\pi r^2$ square units`, nil)

	segs := doc.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, "The area is ", segs[0].Content)
	assert.Equal(t, `A=\pi r^2`, segs[1].Content)
	assert.Equal(t, types.DelimInline, segs[1].Delimiter)
	assert.Equal(t, " square units", segs[2].Content)
	assert.Equal(t, 1, doc.MathCount())

	result, err := doc.EditMath(1, `A = \pi r^{2}`)
	require.NoError(t, err)
	assert.Equal(t, types.ValidationOK, result)
	assert.Equal(t, `The area is $A = \pi r^2$ square units`, doc.Text())
	assert.Equal(t, 25, doc.Segments()[2].Start)
}

func TestEditIsAdvisory(t *testing.T) {
	doc := NewDocument("see $x$ here", nil)

	result, err := doc.EditMath(1, `\frac{1}{2`)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Unbalanced braces", result.Error)
	assert.Equal(t, `see $\frac{1}{2$ here`, doc.Text())
}

func TestEditRejectsBadIndex(t *testing.T) {
	doc := NewDocument("see $x$ here", nil)

	_, err := doc.EditMath(0, "y")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrInvalidInput, appErr.Code)

	_, err = doc.EditMath(7, "y")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrNotFound, appErr.Code)

	assert.Equal(t, "see $x$ here", doc.Text())
}

func TestEditEnvironmentSegment(t *testing.T) {
	doc := NewDocument(`M = \begin{matrix}a\end{matrix}`, nil)
	require.Equal(t, 1, doc.MathCount())

	_, err := doc.EditMath(1, "\\begin{matrix}  b\n\\end{matrix}")
	require.NoError(t, err)
	assert.Equal(t, `M = \begin{matrix} b \end{matrix}`, doc.Text())
}

func TestPreview(t *testing.T) {
	doc := NewDocument("value $x^2$", nil)
	got := doc.Preview()
	assert.False(t, got.Fallback)
	assert.Contains(t, got.HTML, "<math")

	doc.SetText(`\begin{pmatrix}1 & 0 \\ 0 & 1\end{pmatrix}`)
	got = doc.Preview()
	assert.True(t, got.Dense)
	assert.Contains(t, got.HTML, "<math")
	assert.Contains(t, got.HTML, "<mtable")
	assert.True(t, doc.Validate().Valid)
}
