package render

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`\(x\)`, "$x$"},
		{`\[x\]`, "$$x$$"},
		{`\( x + 1 \)`, "$x + 1$"},
		{"$$ a $$ and $ b $", "$$a$$ and $b$"},
		{"a \\[\n y \n\\] b", "a $$y$$ b"},
		{"$ $", "$ $"},
		{`\begin{matrix} a \end{matrix}`, `$$\begin{matrix} a \end{matrix}$$`},
		{"see \\begin{cases}\n a \\\\\n b\n\\end{cases}", `see $$\begin{cases} a \\ b \end{cases}$$`},
		{"$$\na\n\nb\n$$", "$$a b$$"},
		{"$$\n  \n$$", "$$\n  \n$$"},
		{"no math", "no math"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Preprocess(tt.in), "Preprocess(%q)", tt.in)
	}
}

func TestHasMatrix(t *testing.T) {
	assert.True(t, HasMatrix(`\begin{pmatrix}1&0\end{pmatrix}`))
	assert.True(t, HasMatrix(`\left| A \right|`))
	assert.True(t, HasMatrix(`\left[ a, b \right]`))
	assert.False(t, HasMatrix(`\left( a \right)`))
	assert.False(t, HasMatrix(`x^2 + y^2`))
}

func TestRender(t *testing.T) {
	r := NewRenderer()

	t.Run("inline math becomes MathML", func(t *testing.T) {
		got := r.Render("The value $x^2$ grows")
		assert.False(t, got.Fallback)
		assert.False(t, got.Dense)
		assert.Contains(t, got.HTML, `<div class="math-preview">`)
		assert.Contains(t, got.HTML, "<math")
		assert.Contains(t, got.HTML, `display="inline"`)
		assert.Contains(t, got.HTML, "The value ")
	})

	t.Run("bracket delimiters render as display math", func(t *testing.T) {
		got := r.Render(`\[E = mc^2\]`)
		assert.False(t, got.Fallback)
		assert.Contains(t, got.HTML, `display="block"`)
	})

	t.Run("display math over several lines", func(t *testing.T) {
		got := r.Render("$$\na + b\n$$")
		assert.Contains(t, got.HTML, `display="block"`)
		assert.NotContains(t, got.HTML, "$$")
	})

	t.Run("bare environment renders as a table", func(t *testing.T) {
		got := r.Render(`\begin{pmatrix}a & b \\ c & d\end{pmatrix}`)
		assert.False(t, got.Fallback)
		assert.True(t, got.Dense)
		assert.Contains(t, got.HTML, `display="block"`)
		assert.Contains(t, got.HTML, "<mtable")
		assert.NotContains(t, got.HTML, `\begin{pmatrix}`)
	})

	t.Run("display math across a blank line stays one block", func(t *testing.T) {
		got := r.Render("$$\na\n\nb\n$$")
		assert.False(t, got.Fallback)
		assert.Equal(t, 1, strings.Count(got.HTML, "<math"))
		assert.Contains(t, got.HTML, `display="block"`)
		assert.NotContains(t, got.HTML, "$$")
	})

	t.Run("list marker inside display math is not a list", func(t *testing.T) {
		got := r.Render("$$\nx\n- y\n$$")
		assert.NotContains(t, got.HTML, "<ul")
		assert.NotContains(t, got.HTML, "$$")
	})

	t.Run("matrix selects dense layout", func(t *testing.T) {
		got := r.Render(`$\left| A \right|$`)
		assert.True(t, got.Dense)
		assert.Contains(t, got.HTML, ClassDense)
	})

	t.Run("tables and lists get classes", func(t *testing.T) {
		got := r.Render("| a | b |\n|---|---|\n| $1$ | 2 |\n\n- one\n- two\n")
		assert.Contains(t, got.HTML, `<table class="math-table">`)
		assert.Contains(t, got.HTML, `<ul class="math-list">`)
	})

	t.Run("escaped dollar stays text", func(t *testing.T) {
		got := r.Render(`costs \$5`)
		assert.NotContains(t, got.HTML, "<math")
	})
}

func TestRenderNeverPanics(t *testing.T) {
	r := NewRenderer()
	inputs := []string{
		"",
		"   ",
		`$\frac{$`,
		`$\left($`,
		`$$\begin{matrix$$`,
		`$\sqrt[$`,
		`$}}}$`,
		"$$",
		`$\end{array}$`,
		strings.Repeat("{", 200),
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			got := r.Render(in)
			if got.Fallback {
				assert.Equal(t, Fallback(in).HTML, got.HTML)
			} else {
				assert.NotEmpty(t, got.HTML)
			}
		}, "Render(%q)", in)
	}
}

func TestRenderEmptyIsFallback(t *testing.T) {
	got := NewRenderer().Render("")
	assert.True(t, got.Fallback)
	assert.Equal(t, "", got.HTML)

	got = NewRenderer().Render("a < b")
	assert.False(t, got.Fallback)
	assert.Equal(t, "a &lt; b", Fallback("a < b").HTML)
}

func TestRenderConcurrent(t *testing.T) {
	r := NewRenderer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got := r.Render(`$\frac{a}{b}$`)
				assert.Contains(t, got.HTML, "<math")
			}
		}()
	}
	wg.Wait()
}
