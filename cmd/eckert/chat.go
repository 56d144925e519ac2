package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eckert-ai/eckert/internal/message"
	"github.com/eckert-ai/eckert/internal/session"
)

// runChat handles "eckert chat": an interactive session over stdin that
// ends on exit, 退出, or EOF.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, g globalFlags, args []string) error {
	cfg, _, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, cfg, true)
	if err != nil {
		return err
	}

	sessionID, rest, err := parseSessionFlag(args, cfg.DefaultSession)
	if err != nil {
		return err
	}
	plain := false
	for _, a := range rest {
		switch a {
		case "-plain", "--plain":
			plain = true
		default:
			return fmt.Errorf("usage: eckert chat [-session id] [-plain]")
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		renderer session.Renderer = session.PlainRenderer{}
		prompt                    = userPrompt
	)
	if !plain {
		renderer = newStyledRenderer()
		prompt = promptStyle.Render(userPrompt)
		fmt.Fprintln(stdout, hintStyle.Render(fmt.Sprintf("会话 %s，输入 exit 或 退出 结束对话", sessionID)))
	}

	in := session.NewLinePrompter(stdin, stdout, prompt)
	transcript, err := a.sessions.RunSession(ctx, sessionID, in, stdout, renderer)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	if g.outputFmt == "json" {
		return writeJSONOut(stdout, transcript)
	}
	return nil
}

// runAsk handles "eckert ask <question>": one turn, answer on stdout.
func runAsk(ctx context.Context, stdout, stderr io.Writer, g globalFlags, args []string) error {
	cfg, _, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, cfg, true)
	if err != nil {
		return err
	}

	sessionID, rest, err := parseSessionFlag(args, cfg.DefaultSession)
	if err != nil {
		return err
	}
	question := strings.Join(rest, " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("usage: eckert ask [-session id] <question>")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	turn, err := a.sessions.Run(ctx, sessionID, question, nil)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if g.outputFmt == "json" {
		return writeJSONOut(stdout, map[string]any{
			"session_id": turn.SessionID,
			"turn_id":    turn.ID,
			"answer":     turn.Answer,
			"steps":      turn.Steps,
			"exhausted":  turn.Exhausted,
			"elapsed_ms": turn.Elapsed.Milliseconds(),
		})
	}
	fmt.Fprintln(stdout, turn.Answer)
	return nil
}

// runHistory prints a session transcript.
func runHistory(ctx context.Context, stdout, stderr io.Writer, g globalFlags, args []string) error {
	a, sessionID, err := storeCommand(g, stderr, args)
	if err != nil {
		return err
	}
	defer a.Close()

	msgs, err := a.sessions.History(ctx, sessionID)
	if err != nil {
		return err
	}
	if g.outputFmt == "json" {
		return writeJSONOut(stdout, msgs)
	}
	if len(msgs) == 0 {
		fmt.Fprintf(stdout, "会话 %s 没有记录\n", sessionID)
		return nil
	}
	for _, m := range msgs {
		label := "用户"
		if m.Role == message.RoleAssistant {
			label = "AI"
		}
		fmt.Fprintf(stdout, "[%s] %s：%s\n", m.CreatedAt.Local().Format(time.DateTime), label, m.Content)
	}
	return nil
}

// runClear deletes a session transcript.
func runClear(ctx context.Context, stdout, stderr io.Writer, g globalFlags, args []string) error {
	a, sessionID, err := storeCommand(g, stderr, args)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sessions.Clear(ctx, sessionID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "会话 %s 已清空\n", sessionID)
	return nil
}

// runSessions lists sessions by most recent activity.
func runSessions(ctx context.Context, stdout, stderr io.Writer, g globalFlags) error {
	a, _, err := storeCommand(g, stderr, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.sessions.Sessions(ctx)
	if err != nil {
		return err
	}
	if g.outputFmt == "json" {
		return writeJSONOut(stdout, infos)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tMESSAGES\tLAST ACTIVE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", info.ID, info.MessageCount, info.LastActive.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// storeCommand loads config and opens the store for commands that do
// not run turns.
func storeCommand(g globalFlags, stderr io.Writer, args []string) (*app, string, error) {
	cfg, _, err := loadConfig(g.configPath)
	if err != nil {
		return nil, "", err
	}
	logger, err := newLogger(stderr, cfg, true)
	if err != nil {
		return nil, "", err
	}
	sessionID, rest, err := parseSessionFlag(args, cfg.DefaultSession)
	if err != nil {
		return nil, "", err
	}
	if len(rest) > 0 {
		return nil, "", fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}
	a, err := openStoreOnly(cfg, logger)
	if err != nil {
		return nil, "", err
	}
	return a, sessionID, nil
}
