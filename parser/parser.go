package parser

import (
	"errors"
	"log"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// MaxArgs is the argument capacity of a single input line. A line that
// tokenizes to more words than this is rejected outright rather than
// truncated.
const MaxArgs = 30

var (
	ErrTooManyArgs           = errors.New("argument count exceeds capacity")
	ErrMissingRedirectTarget = errors.New("missing redirect target")
	ErrMisplacedPipe         = errors.New("misplaced pipe")
	ErrMissingCommand        = errors.New("missing command")
	ErrEmptyBackground       = errors.New("command cannot run in background with no arguments")
)

var shellLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Pipe", Pattern: `\|`},
	{Name: "Redirect", Pattern: `>`},
	{Name: "Word", Pattern: `[^\s|>]+`},
})

var symbols = shellLexer.Symbols()

// Pipeline is the parsed, structured representation of one input line,
// ready for execution: one or two command stages, an optional redirect
// target for the final stage's stdout, and a background flag.
type Pipeline struct {
	Stages         [][]string
	RedirectTarget string
	Background     bool
}

// String re-serializes the pipeline. The argument words come back in their
// original order, so formatting a parsed line reproduces its non-control
// tokens exactly.
func (p *Pipeline) String() string {
	var b strings.Builder
	for i, stage := range p.Stages {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(strings.Join(stage, " "))
	}
	if p.RedirectTarget != "" {
		b.WriteString(" > ")
		b.WriteString(p.RedirectTarget)
	}
	if p.Background {
		b.WriteString(" &")
	}
	return b.String()
}

// Argv returns the words of all stages in order, without control tokens.
func (p *Pipeline) Argv() []string {
	var argv []string
	for _, stage := range p.Stages {
		argv = append(argv, stage...)
	}
	return argv
}

// stripBackground scans the line backward over trailing whitespace. The
// first '&' found during that scan marks the command as backgrounded and is
// removed; any other character stops the scan. '&' therefore must be the
// last non-space character to count, and an embedded '&' stays a literal
// part of its word.
func stripBackground(line string) (string, bool) {
	end := len(line) - 1
	for end >= 0 {
		switch line[end] {
		case '&':
			return line[:end], true
		case ' ', '\t', '\n', '\r':
			end--
		default:
			return line[:end+1], false
		}
	}
	return "", false
}

// Tokenize splits an input line into tokens, isolating the control tokens
// "|" and ">" even when glued to a word. It returns the ordered tokens, the
// background flag, and ErrTooManyArgs when the line carries more than
// capacity words.
func Tokenize(line string, capacity int) ([]string, bool, error) {
	line, background := stripBackground(line)

	lx, err := shellLexer.LexString("", line)
	if err != nil {
		return nil, background, err
	}

	var tokens []string
	words := 0
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, background, err
		}
		if tok.EOF() {
			break
		}
		switch tok.Type {
		case symbols["Whitespace"]:
			continue
		case symbols["Word"]:
			words++
			if words > capacity {
				return nil, background, ErrTooManyArgs
			}
		}
		tokens = append(tokens, tok.Value)
	}
	return tokens, background, nil
}

// Build walks the token stream left to right and produces a Pipeline.
// A ">" consumes the following token as the redirect target; a "|" closes
// the current stage. At most two stages are supported, every stage must be
// non-empty, and the redirect target always binds to the final stage's
// stdout no matter where the ">" appears relative to the "|".
//
// Zero tokens yield a nil Pipeline; zero tokens with the background flag
// set are an error, since there is nothing to background.
func Build(tokens []string, background bool) (*Pipeline, error) {
	if len(tokens) == 0 {
		if background {
			return nil, ErrEmptyBackground
		}
		return nil, nil
	}

	p := &Pipeline{Background: background}
	var current []string
	pipeSeen := false

	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case ">":
			if i+1 >= len(tokens) || tokens[i+1] == ">" || tokens[i+1] == "|" {
				return nil, ErrMissingRedirectTarget
			}
			p.RedirectTarget = tokens[i+1]
			i++
		case "|":
			if len(current) == 0 || pipeSeen {
				return nil, ErrMisplacedPipe
			}
			p.Stages = append(p.Stages, current)
			current = nil
			pipeSeen = true
		default:
			current = append(current, tokens[i])
		}
	}

	if len(current) == 0 {
		if pipeSeen {
			return nil, ErrMisplacedPipe
		}
		// The line held only redirect tokens, e.g. "> out".
		return nil, ErrMissingCommand
	}
	p.Stages = append(p.Stages, current)
	return p, nil
}

// Parse composes Tokenize and Build with the default argument capacity.
// A whitespace-only line parses to (nil, nil).
func Parse(input string) (*Pipeline, error) {
	tokens, background, err := Tokenize(input, MaxArgs)
	if err != nil {
		return nil, err
	}
	p, err := Build(tokens, background)
	if err != nil {
		log.Printf("failed to parse command string: %s, error: %v", strings.TrimSpace(input), err)
		return nil, err
	}
	return p, nil
}
