// Package llm provides the text generators the reasoning loop talks to.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/eckert-ai/eckert/internal/message"
)

// ErrGeneratorUnavailable wraps every failure to reach the model:
// transport errors, non-2xx responses and undecodable bodies. An empty
// reply from a reachable model is not an error.
var ErrGeneratorUnavailable = errors.New("generator unavailable")

// StreamFunc receives each text fragment as the model produces it.
type StreamFunc func(chunk string)

// Generator produces the model's next reply for an ordered context. The
// system instruction is passed separately; providers place it wherever
// their API expects it.
type Generator interface {
	Generate(ctx context.Context, messages []message.Message, system string) (string, error)

	// GenerateStream behaves like Generate and additionally forwards
	// fragments to fn as they arrive. The returned text is the full reply.
	GenerateStream(ctx context.Context, messages []message.Message, system string, fn StreamFunc) (string, error)
}

// Pinger is implemented by generators that can check reachability
// without generating text.
type Pinger interface {
	Ping(ctx context.Context) error
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGeneratorUnavailable, provider, err)
}

// wireRole maps a message role to the two-party user/assistant form every
// provider accepts. Tool observations go back as user turns because the
// loop drives tools through text, not native tool calls.
func wireRole(r message.Role) string {
	if r == message.RoleAssistant {
		return "assistant"
	}
	return "user"
}
