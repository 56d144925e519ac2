package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eckert-ai/eckert/internal/llm"
	"github.com/eckert-ai/eckert/internal/message"
)

// exitTokens end an interactive session, compared case-insensitively.
var exitTokens = []string{"exit", "退出"}

// IsExit reports whether line is an exit token.
func IsExit(line string) bool {
	line = strings.TrimSpace(line)
	for _, tok := range exitTokens {
		if strings.EqualFold(line, tok) {
			return true
		}
	}
	return false
}

// Prompter supplies user input one line at a time. It returns io.EOF
// when input is exhausted.
type Prompter interface {
	Prompt(ctx context.Context) (string, error)
}

// LinePrompter reads lines from a reader, writing prompt before each.
type LinePrompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	prompt  string
}

// NewLinePrompter creates a prompter over r. The prompt is written to out
// before each read; out may be nil.
func NewLinePrompter(r io.Reader, out io.Writer, prompt string) *LinePrompter {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &LinePrompter{scanner: s, out: out, prompt: prompt}
}

// Prompt implements Prompter.
func (p *LinePrompter) Prompt(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.out != nil && p.prompt != "" {
		fmt.Fprint(p.out, p.prompt)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

// Renderer formats session output. The plain renderer prints answers
// prefixed with "AI：".
type Renderer interface {
	Answer(w io.Writer, answer string)
	Error(w io.Writer, err error)
	// Stream returns a callback for generator fragments, or nil when
	// output is not streamed.
	Stream(w io.Writer) llm.StreamFunc
}

// PlainRenderer writes unstyled text.
type PlainRenderer struct{}

// Answer implements Renderer.
func (PlainRenderer) Answer(w io.Writer, answer string) { fmt.Fprintf(w, "AI：%s\n", answer) }

// Error implements Renderer.
func (PlainRenderer) Error(w io.Writer, err error) { fmt.Fprintf(w, "错误：%v\n", err) }

// Stream implements Renderer.
func (PlainRenderer) Stream(io.Writer) llm.StreamFunc { return nil }

// RunSession reads input from in until an exit token or EOF, running one
// turn per non-empty line and writing answers to out. A failed turn is
// reported and the session continues. The returned transcript is the
// session's persisted history at exit.
func (c *Controller) RunSession(ctx context.Context, sessionID string, in Prompter, out io.Writer, r Renderer) ([]message.Message, error) {
	if r == nil {
		r = PlainRenderer{}
	}
	for {
		line, err := in.Prompt(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if IsExit(line) {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		turn, err := c.Run(ctx, sessionID, line, r.Stream(out))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.Error(out, err)
			continue
		}
		r.Answer(out, turn.Answer)
	}

	c.logger.Info("session ended", "session", sessionID)
	return c.store.Read(ctx, sessionID)
}
