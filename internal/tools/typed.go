package tools

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Validator is implemented by typed inputs that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// NewTypedTool builds a Tool whose handler receives a decoded T instead
// of a raw argument map. The input schema is reflected from T.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, in T) (string, error)) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		InputSchema: SchemaFor[T](),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			var in T
			if err := DecodeArgs(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if v, ok := any(in).(Validator); ok {
				if err := v.Validate(); err != nil {
					return "", fmt.Errorf("%s validation failed: %w", name, err)
				}
			}
			return fn(ctx, in)
		},
	}
}

// DecodeArgs decodes a generator-supplied argument map into out using
// json tags. Input is weakly typed so "2" decodes into a number field.
func DecodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
