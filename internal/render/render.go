// Package render turns mixed text and LaTeX into HTML with MathML.
//
// Input is preprocessed so \(...\) and \[...\] become dollar-delimited, then
// rendered through goldmark with the Math extension. Rendering never panics:
// any failure yields the escaped input marked as a fallback.
package render

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/segment"
	"latex-mathedit/internal/types"
)

// CSS classes applied to the rendered output.
const (
	ClassPreview = "math-preview"
	ClassDense   = "math-preview math-dense"
	ClassTable   = "math-table"
	ClassList    = "math-list"
)

var (
	inlineParenRe    = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)
	displayBracketRe = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)

	environmentRe = regexp.MustCompile(`(?s)\\begin\{[^}]+\}.*?\\end\{[^}]+\}`)
	leftBarRe     = regexp.MustCompile(`(?s)\\left\|.*?\\right\|`)
	leftBracketRe = regexp.MustCompile(`(?s)\\left\[.*?\\right\]`)

	mathLineBreakRe = regexp.MustCompile(`[ \t]*\r?\n[ \t\r\n]*`)
)

// Renderer renders preview HTML. It holds no per-call state and is safe for
// concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a Renderer with tables, the math extension and light
// structural classes on tables and lists.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, Math),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(styleTransformer{}, 200)),
		),
	)
	return &Renderer{md: md}
}

// Render converts content to HTML. The original content decides the dense
// layout; conversion only affects parsing.
func (r *Renderer) Render(content string) (result types.RenderResult) {
	if strings.TrimSpace(content) == "" {
		return Fallback(content)
	}
	dense := HasMatrix(content)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("math render failed, showing raw text",
				logger.Any("panic", rec), logger.Int("length", len(content)))
			result = Fallback(content)
		}
	}()

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(Preprocess(content)), &buf); err != nil {
		logger.Warn("markdown conversion failed, showing raw text", logger.Err(err))
		return Fallback(content)
	}

	class := ClassPreview
	if dense {
		class = ClassDense
	}
	return types.RenderResult{
		HTML:  fmt.Sprintf(`<div class="%s">%s</div>`, class, buf.String()),
		Dense: dense,
	}
}

// Fallback is the result shown when rendering fails: the raw input, escaped.
func Fallback(content string) types.RenderResult {
	return types.RenderResult{HTML: html.EscapeString(content), Fallback: true}
}

// Preprocess converts bracket delimiters to dollar delimiters, wraps bare
// environment blocks in $$, folds display math onto one line and trims
// whitespace just inside every $ and $$ pair.
func Preprocess(content string) string {
	s := displayBracketRe.ReplaceAllString(content, "$$$$${1}$$$$")
	s = inlineParenRe.ReplaceAllString(s, "$$${1}$$")

	segs := segment.Parse(s)
	for i := range segs {
		if !segs[i].IsMath() {
			continue
		}
		if segs[i].Environment != "" {
			// A bare \begin{ENV} block renders as display math.
			segs[i].Environment = ""
			segs[i].Delimiter = types.DelimDisplay
		}
		content := segs[i].Content
		if segs[i].Delimiter == types.DelimDisplay {
			// Markdown must not see paragraph breaks or block markers inside display math.
			content = mathLineBreakRe.ReplaceAllString(content, " ")
		}
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			segs[i].Content = trimmed
		}
	}
	return segment.Reconstruct(segs)
}

// HasMatrix reports whether content contains an environment block or
// \left|...\right| / \left[...\right] pairs.
func HasMatrix(content string) bool {
	return environmentRe.MatchString(content) ||
		leftBarRe.MatchString(content) ||
		leftBracketRe.MatchString(content)
}

// styleTransformer tags tables and lists with classes for the preview stylesheet.
type styleTransformer struct{}

var _ parser.ASTTransformer = (*styleTransformer)(nil)

func (t styleTransformer) Transform(document *ast.Document, reader text.Reader, _ parser.Context) {
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node.Kind() {
		case extast.KindTable:
			node.SetAttributeString("class", []byte(ClassTable))
		case ast.KindList:
			node.SetAttributeString("class", []byte(ClassList))
		}
		return ast.WalkContinue, nil
	})
}
