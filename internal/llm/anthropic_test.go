package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/eckert-ai/eckert/internal/message"
)

type fakeTransport struct {
	status      int
	contentType string
	body        string
	captured    []byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.captured, _ = io.ReadAll(req.Body)
	_ = req.Body.Close()
	resp := &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.body))),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", f.contentType)
	return resp, nil
}

func newTestAnthropic(ft *fakeTransport) *AnthropicClient {
	return NewAnthropicClient("test-key", "claude-test", 0.5, 0, discardLogger(),
		option.WithHTTPClient(&http.Client{Transport: ft}),
	)
}

func TestAnthropicGenerate(t *testing.T) {
	ft := &fakeTransport{
		status:      http.StatusOK,
		contentType: "application/json",
		body:        `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[{"type":"text","text":"最终答案：3"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`,
	}
	c := newTestAnthropic(ft)

	history := []message.Message{message.User("1+2"), message.Assistant("思考：算"), message.Tool("add_numbers", nil, "3", "观察：3")}
	text, err := c.Generate(context.Background(), history, "SYSTEM")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "最终答案：3" {
		t.Errorf("text = %q", text)
	}

	var req struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(ft.captured, &req); err != nil {
		t.Fatalf("decode captured request: %v", err)
	}
	if req.Model != "claude-test" || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("model=%q max_tokens=%d", req.Model, req.MaxTokens)
	}
	if len(req.System) != 1 || req.System[0].Text != "SYSTEM" {
		t.Errorf("system = %+v", req.System)
	}
	var roles []string
	for _, m := range req.Messages {
		roles = append(roles, m.Role)
	}
	if got := strings.Join(roles, ","); got != "user,assistant,user" {
		t.Errorf("roles = %s", got)
	}
}

func TestAnthropicGenerate_EmptyContent(t *testing.T) {
	ft := &fakeTransport{
		status:      http.StatusOK,
		contentType: "application/json",
		body:        `{"id":"msg_2","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":0}}`,
	}
	text, err := newTestAnthropic(ft).Generate(context.Background(), []message.Message{message.User("hi")}, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestAnthropicGenerate_APIError(t *testing.T) {
	ft := &fakeTransport{
		status:      http.StatusBadRequest,
		contentType: "application/json",
		body:        `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`,
	}
	_, err := newTestAnthropic(ft).Generate(context.Background(), []message.Message{message.User("hi")}, "")
	if !errors.Is(err, ErrGeneratorUnavailable) {
		t.Fatalf("err = %v, want ErrGeneratorUnavailable", err)
	}
}

func TestAnthropicGenerateStream(t *testing.T) {
	events := []string{
		`event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":5,"output_tokens":0}}}`,
		`event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"最终"}}`,
		`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"答案：好"}}`,
		`event: content_block_stop
data: {"type":"content_block_stop","index":0}`,
		`event: message_stop
data: {"type":"message_stop"}`,
	}
	ft := &fakeTransport{
		status:      http.StatusOK,
		contentType: "text/event-stream",
		body:        strings.Join(events, "\n\n") + "\n\n",
	}

	var chunks []string
	text, err := newTestAnthropic(ft).GenerateStream(context.Background(), []message.Message{message.User("hi")}, "", func(s string) {
		chunks = append(chunks, s)
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if text != "最终答案：好" {
		t.Errorf("text = %q", text)
	}
	if len(chunks) != 2 {
		t.Errorf("chunks = %v", chunks)
	}
}
