// mathedit is a command-line tool for normalizing, checking and previewing
// text with embedded LaTeX math.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"latex-mathedit/internal/assist"
	"latex-mathedit/internal/composer"
	"latex-mathedit/internal/config"
	"latex-mathedit/internal/encoding"
	"latex-mathedit/internal/latex"
	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/render"
	"latex-mathedit/internal/segment"
)

func main() {
	// Initialize logger
	logger.Init(&logger.Config{
		LogFilePath:   "latex-mathedit-cli.log",
		Level:         logger.LevelWarn,
		EnableConsole: true,
	})
	code := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	logger.Close()
	os.Exit(code)
}

// Exit codes
const (
	exitOK      = 0
	exitUsage   = 1
	exitInvalid = 2
)

// cli carries the streams of one invocation.
type cli struct {
	args   []string // arguments after the command name
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// run executes one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return exitUsage
	}
	c := &cli{args: args[1:], stdin: stdin, stdout: stdout, stderr: stderr}

	switch args[0] {
	case "normalize":
		return c.normalize()
	case "validate":
		return c.validate()
	case "segments":
		return c.segments()
	case "edit":
		return c.edit()
	case "render":
		return c.render()
	case "encoding":
		return c.encoding()
	case "suggest":
		return c.suggest()
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[0])
		printUsage(stdout)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	usage := `mathedit - LaTeX Math Text Tool

Usage:
  mathedit <command> [arguments]

Commands:
  normalize   Print the canonical form of an expression
  validate    Check brace and $ balance
  segments    List text and math segments of a file
  edit        Replace one math segment and print the new text
  render      Render a file to preview HTML
  encoding    Detect the encoding of a file
  suggest     Ask the assistant to repair an expression

Arguments:
  mathedit normalize <expression>
  mathedit validate <file>|-
  mathedit segments <file>|-
  mathedit edit <file>|- <index> <content> [--write]
  mathedit render <file>|- [--out=<file>]
  mathedit encoding <file>
  mathedit suggest <expression>

A file argument of - reads standard input.

Examples:
  mathedit normalize '\frac{1}{2} + x^{5}'
  mathedit segments notes.md
  mathedit edit notes.md 1 'A = \pi r^{2}' --write
  mathedit render notes.md --out=preview.html
`
	fmt.Fprintln(w, usage)
}

func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stdout, "Error: %v\n", err)
	return exitUsage
}

// readSource reads a file in any supported encoding, or stdin for "-".
func (c *cli) readSource(arg string) (string, error) {
	if arg != "-" {
		text, _, err := encoding.ReadFile(arg)
		return text, err
	}
	data, err := io.ReadAll(c.stdin)
	if err != nil {
		return "", err
	}
	text, _, err := encoding.Decode(data)
	return text, err
}

func (c *cli) normalize() int {
	if len(c.args) < 1 {
		fmt.Fprintln(c.stdout, "Usage: mathedit normalize <expression>")
		return exitUsage
	}
	fmt.Fprintln(c.stdout, latex.Normalize(strings.Join(c.args, " ")))
	return exitOK
}

func (c *cli) validate() int {
	if len(c.args) < 1 {
		fmt.Fprintln(c.stdout, "Usage: mathedit validate <file>|-")
		return exitUsage
	}
	text, err := c.readSource(c.args[0])
	if err != nil {
		return c.fail(err)
	}

	result := latex.Validate(text)
	if !result.Valid {
		fmt.Fprintf(c.stdout, "✗ %s\n", result.Error)
		return exitInvalid
	}

	segs := segment.Parse(text)
	failed := 0
	for i, s := range segs {
		if !s.IsMath() {
			continue
		}
		if r := latex.Validate(s.Content); !r.Valid {
			fmt.Fprintf(c.stdout, "✗ segment %d at offset %d: %s\n", i, s.Start, r.Error)
			failed++
		}
	}
	if failed > 0 {
		return exitInvalid
	}
	fmt.Fprintf(c.stdout, "✓ Valid (%d math segments)\n", segment.MathCount(segs))
	return exitOK
}

func (c *cli) segments() int {
	if len(c.args) < 1 {
		fmt.Fprintln(c.stdout, "Usage: mathedit segments <file>|-")
		return exitUsage
	}
	text, err := c.readSource(c.args[0])
	if err != nil {
		return c.fail(err)
	}
	segs := segment.Parse(text)

	for i, s := range segs {
		kind := string(s.Type)
		if s.Environment != "" {
			kind += " " + s.Environment
		} else if s.IsMath() {
			kind += " " + string(s.Delimiter)
		}
		fmt.Fprintf(c.stdout, "%3d  %-14s [%d,%d)  %q\n", i, kind, s.Start, s.End, s.Content)
	}
	fmt.Fprintf(c.stdout, "\n%d segments, %d math\n", len(segs), segment.MathCount(segs))
	return exitOK
}

func (c *cli) edit() int {
	if len(c.args) < 3 {
		fmt.Fprintln(c.stdout, "Usage: mathedit edit <file>|- <index> <content> [--write]")
		return exitUsage
	}
	file := c.args[0]
	index, err := strconv.Atoi(c.args[1])
	if err != nil {
		fmt.Fprintf(c.stdout, "Error: invalid index %q\n", c.args[1])
		return exitUsage
	}
	write := false
	var parts []string
	for _, arg := range c.args[2:] {
		if arg == "--write" {
			write = true
			continue
		}
		parts = append(parts, arg)
	}
	if len(parts) == 0 {
		fmt.Fprintln(c.stdout, "Usage: mathedit edit <file>|- <index> <content> [--write]")
		return exitUsage
	}

	text, err := c.readSource(file)
	if err != nil {
		return c.fail(err)
	}
	doc := composer.NewDocument(text, nil)
	result, err := doc.EditMath(index, strings.Join(parts, " "))
	if err != nil {
		return c.fail(err)
	}
	if !result.Valid {
		fmt.Fprintf(c.stderr, "warning: %s\n", result.Error)
	}

	if write && file != "-" {
		if err := os.WriteFile(file, []byte(doc.Text()), 0644); err != nil {
			return c.fail(err)
		}
		fmt.Fprintf(c.stdout, "✓ Segment %d updated in %s\n", index, file)
		return exitOK
	}
	fmt.Fprintln(c.stdout, doc.Text())
	return exitOK
}

func (c *cli) render() int {
	if len(c.args) < 1 {
		fmt.Fprintln(c.stdout, "Usage: mathedit render <file>|- [--out=<file>]")
		return exitUsage
	}
	out := ""
	for _, arg := range c.args[1:] {
		if strings.HasPrefix(arg, "--out=") {
			out = strings.TrimPrefix(arg, "--out=")
		}
	}

	text, err := c.readSource(c.args[0])
	if err != nil {
		return c.fail(err)
	}
	result := render.NewRenderer().Render(text)
	if result.Fallback {
		fmt.Fprintln(c.stderr, "warning: rendering failed, output is the escaped source")
	}
	if out == "" {
		fmt.Fprintln(c.stdout, result.HTML)
		return exitOK
	}
	if err := os.WriteFile(out, []byte(result.HTML), 0644); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "✓ Preview written to %s\n", out)
	return exitOK
}

func (c *cli) encoding() int {
	if len(c.args) < 1 {
		fmt.Fprintln(c.stdout, "Usage: mathedit encoding <file>")
		return exitUsage
	}
	data, err := os.ReadFile(c.args[0])
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "Encoding: %s\n", encoding.Detect(data))
	return exitOK
}

func (c *cli) suggest() int {
	if len(c.args) < 1 {
		fmt.Fprintln(c.stdout, "Usage: mathedit suggest <expression>")
		return exitUsage
	}

	cfg, err := config.NewConfigManager("")
	if err != nil {
		return c.fail(err)
	}
	if err := cfg.Load(); err != nil {
		return c.fail(err)
	}
	assistant, err := assist.NewFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(c.stdout, "Error: %v\n", err)
		fmt.Fprintln(c.stdout, "Set OPENAI_API_KEY or add openai_api_key to", cfg.GetConfigPath())
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	suggestion, err := assistant.Suggest(ctx, strings.Join(c.args, " "))
	if err != nil {
		return c.fail(err)
	}

	fmt.Fprintf(c.stdout, "Suggested: %s\n", suggestion.Suggested)
	if suggestion.Validation.Valid {
		fmt.Fprintln(c.stdout, "✓ Valid")
	} else {
		fmt.Fprintf(c.stdout, "✗ %s\n", suggestion.Validation.Error)
	}
	if suggestion.Explanation != "" {
		fmt.Fprintf(c.stdout, "\n%s\n", suggestion.Explanation)
	}
	return exitOK
}
