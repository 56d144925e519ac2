package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/eckert-ai/eckert/internal/llm"
)

const (
	userPrompt  = "用户："
	answerLabel = "AI："
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	streamStyle = lipgloss.NewStyle().Faint(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")) // Dim gray
)

// styledRenderer echoes generator output while a turn runs and renders
// the final answer as markdown.
type styledRenderer struct {
	md       *glamour.TermRenderer
	streamed bool
}

func newStyledRenderer() *styledRenderer {
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		md = nil
	}
	return &styledRenderer{md: md}
}

// Answer implements session.Renderer.
func (r *styledRenderer) Answer(w io.Writer, answer string) {
	r.endStream(w)
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render(answerLabel), r.markdown(answer))
}

// Error implements session.Renderer.
func (r *styledRenderer) Error(w io.Writer, err error) {
	r.endStream(w)
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("错误：%v", err)))
}

// Stream implements session.Renderer.
func (r *styledRenderer) Stream(w io.Writer) llm.StreamFunc {
	return func(chunk string) {
		r.streamed = true
		fmt.Fprint(w, streamStyle.Render(chunk))
	}
}

func (r *styledRenderer) endStream(w io.Writer) {
	if r.streamed {
		fmt.Fprintln(w)
		r.streamed = false
	}
}

func (r *styledRenderer) markdown(text string) string {
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}
