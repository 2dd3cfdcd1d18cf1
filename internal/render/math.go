package render

import (
	"bytes"
	"sync"

	"git.sr.ht/~mekyt/latex2mathml"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const mathMLNamespace = "http://www.w3.org/1998/Math/MathML"

// latex2mathml rebuilds package-level command tables on every Convert call.
var convertMu sync.Mutex

func convertMathML(latex string, display bool) string {
	mode := "inline"
	if display {
		mode = "block"
	}
	convertMu.Lock()
	defer convertMu.Unlock()
	return latex2mathml.Convert(latex, mathMLNamespace, mode, 0)
}

// Math is a goldmark extension that parses $...$ and $$...$$ spans and renders
// them as MathML.
var Math = mathExtension{}

type mathExtension struct{}

func (e mathExtension) Extend(markdown goldmark.Markdown) {
	markdown.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(mathInlineParser{}, 150),
		),
	)
	markdown.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(mathNodeRenderer{}, 150),
		),
	)
}

// KindMath is the node kind of a math span.
var KindMath = ast.NewNodeKind("Math")

// MathNode is an inline node holding raw LaTeX.
type MathNode struct {
	ast.BaseInline
	Latex   string
	Display bool
}

var _ ast.Node = (*MathNode)(nil)

func (n *MathNode) Kind() ast.NodeKind {
	return KindMath
}

func (n *MathNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Latex": n.Latex}, nil)
}

type mathInlineParser struct{}

var _ parser.InlineParser = (*mathInlineParser)(nil)

func (p mathInlineParser) Trigger() []byte {
	return []byte{'$'}
}

func (p mathInlineParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if len(line) < 2 || line[0] != '$' {
		return nil
	}
	display := line[1] == '$'
	open := 1
	if display {
		open = 2
	}

	if end := indexCloser(line, open, display); end >= 0 {
		block.Advance(end + open)
		return &MathNode{Latex: string(line[open:end]), Display: display}
	}
	if !display {
		return nil
	}

	// Display math may continue over the following lines of the paragraph.
	l, pos := block.Position()
	var buf bytes.Buffer
	buf.Write(line[open:])
	block.AdvanceLine()
	for {
		next, _ := block.PeekLine()
		if next == nil {
			block.SetPosition(l, pos)
			return nil
		}
		if end := indexCloser(next, 0, true); end >= 0 {
			buf.Write(next[:end])
			block.Advance(end + 2)
			return &MathNode{Latex: buf.String(), Display: true}
		}
		buf.Write(next)
		block.AdvanceLine()
	}
}

// indexCloser finds the closing delimiter in line starting at from. Inline
// math needs non-empty content on a single line.
func indexCloser(line []byte, from int, display bool) int {
	for j := from; j < len(line); j++ {
		switch c := line[j]; {
		case c == '\\':
			j++
		case c == '\n' && !display:
			return -1
		case c == '$':
			if display {
				if j+1 < len(line) && line[j+1] == '$' {
					return j
				}
				continue
			}
			if j == from {
				return -1
			}
			return j
		}
	}
	return -1
}

type mathNodeRenderer struct{}

var _ renderer.NodeRenderer = (*mathNodeRenderer)(nil)

func (r mathNodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMath, func(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		n := node.(*MathNode)
		if _, err := w.WriteString(convertMathML(n.Latex, n.Display)); err != nil {
			return ast.WalkStop, err
		}
		return ast.WalkSkipChildren, nil
	})
}
