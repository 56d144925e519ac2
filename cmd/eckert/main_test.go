package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eckert-ai/eckert/internal/buildinfo"
	"github.com/eckert-ai/eckert/internal/message"
)

// fakeOllama answers /api/chat with "最终答案：echo <last message>",
// streaming the reply in two chunks when asked to.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Stream   bool `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reply := "最终答案：echo " + req.Messages[len(req.Messages)-1].Content

		enc := json.NewEncoder(w)
		if req.Stream {
			half := len("最终答案：")
			_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": reply[:half]}})
			_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": reply[half:]}, "done": true})
			return
		}
		_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": reply}, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeTestConfig writes a config pointing at baseURL with a bolt store
// in a temp dir.
func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`models:
  provider: ollama
  model: test
  base_url: %s
storage:
  driver: bolt
  path: %s
data_dir: %s
skills_dir: %s
`, baseURL, filepath.Join(dir, "memory.bolt"), dir, filepath.Join(dir, "skills"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), strings.NewReader(stdin), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		out, err := runCmd(t, "", args...)
		if err != nil {
			t.Fatalf("run(%v) error: %v", args, err)
		}
		if !strings.Contains(out, "Usage: eckert") {
			t.Errorf("run(%v) output missing usage:\n%s", args, out)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"unknown flag", []string{"-x", "version"}, "unknown flag"},
		{"bad output format", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"missing config", []string{"-config", "/nonexistent.yaml", "ask", "hi"}, "config file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Eckert ") || !strings.Contains(out, "go_version:") {
		t.Errorf("text output = %q", out)
	}

	out, err = runCmd(t, "", "-o", "json", "version")
	if err != nil {
		t.Fatal(err)
	}
	var info buildinfo.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	if info.Version != buildinfo.Version {
		t.Errorf("version = %q, want %q", info.Version, buildinfo.Version)
	}
}

func TestRunAsk(t *testing.T) {
	cfg := writeTestConfig(t, fakeOllama(t).URL)

	out, err := runCmd(t, "", "-config", cfg, "ask", "-session", "s1", "1+2", "等于几")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out != "echo 1+2 等于几\n" {
		t.Errorf("ask output = %q", out)
	}

	out, err = runCmd(t, "", "-config", cfg, "-o", "json", "ask", "-session", "s1", "again")
	if err != nil {
		t.Fatalf("ask json: %v", err)
	}
	var got struct {
		SessionID string `json:"session_id"`
		Answer    string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.SessionID != "s1" || got.Answer != "echo again" {
		t.Errorf("json ask = %+v", got)
	}

	if _, err := runCmd(t, "", "-config", cfg, "ask"); err == nil {
		t.Error("ask without a question should fail")
	}
}

func TestRunChat_Plain(t *testing.T) {
	cfg := writeTestConfig(t, fakeOllama(t).URL)

	out, err := runCmd(t, "hello\n\nsecond\n退出\nignored\n", "-config", cfg, "chat", "-plain")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	for _, want := range []string{"用户：", "AI：echo hello\n", "AI：echo second\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ignored") {
		t.Errorf("input after exit was processed:\n%s", out)
	}
}

func TestRunChat_StyledStreams(t *testing.T) {
	cfg := writeTestConfig(t, fakeOllama(t).URL)

	out, err := runCmd(t, "hi\n", "-config", cfg, "-o", "json", "chat", "-session", "styled")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "最终答案") {
		t.Errorf("streamed output not echoed:\n%s", out)
	}
	if !strings.Contains(out, answerLabel) {
		t.Errorf("answer label missing:\n%s", out)
	}

	// The JSON transcript follows the rendered conversation.
	idx := strings.Index(out, "[\n")
	if idx < 0 {
		t.Fatalf("no transcript in output:\n%s", out)
	}
	var transcript []message.Message
	if err := json.Unmarshal([]byte(out[idx:]), &transcript); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(transcript) != 2 || transcript[1].Content != "echo hi" {
		t.Errorf("transcript = %+v", transcript)
	}
}

func TestHistoryClearSessions(t *testing.T) {
	cfg := writeTestConfig(t, fakeOllama(t).URL)

	if _, err := runCmd(t, "", "-config", cfg, "ask", "-session", "alice", "ping"); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "", "-config", cfg, "history", "-session", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "用户：ping") || !strings.Contains(out, "AI：echo ping") {
		t.Errorf("history output:\n%s", out)
	}

	out, err = runCmd(t, "", "-config", cfg, "sessions")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "alice") || !strings.Contains(out, "SESSION") {
		t.Errorf("sessions output:\n%s", out)
	}

	if _, err := runCmd(t, "", "-config", cfg, "clear", "-session", "alice"); err != nil {
		t.Fatal(err)
	}
	out, err = runCmd(t, "", "-config", cfg, "-o", "json", "history", "-session", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("history after clear = %q", out)
	}
}

func TestParseSessionFlag(t *testing.T) {
	tests := []struct {
		args     []string
		wantID   string
		wantRest []string
		wantErr  bool
	}{
		{nil, "def", nil, false},
		{[]string{"-session", "a", "q"}, "a", []string{"q"}, false},
		{[]string{"q", "-s", "b"}, "b", []string{"q"}, false},
		{[]string{"-session=c"}, "c", nil, false},
		{[]string{"-session"}, "", nil, true},
		{[]string{"-session", " "}, "", nil, true},
	}
	for _, tt := range tests {
		id, rest, err := parseSessionFlag(tt.args, "def")
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSessionFlag(%v) error = %v", tt.args, err)
			continue
		}
		if id != tt.wantID || strings.Join(rest, ",") != strings.Join(tt.wantRest, ",") {
			t.Errorf("parseSessionFlag(%v) = %q, %v", tt.args, id, rest)
		}
	}
}
