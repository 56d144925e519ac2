package tools

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrToolNotFound_Error(t *testing.T) {
	err := &ErrToolNotFound{ToolName: "web_search"}
	want := `tool "web_search" is not registered`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrToolNotFound_WrappedErrorsAs(t *testing.T) {
	orig := &ErrToolNotFound{ToolName: "add_numbers"}
	wrapped := fmt.Errorf("resolve: %w", orig)

	var target *ErrToolNotFound
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ErrToolNotFound")
	}
	if target.ToolName != "add_numbers" {
		t.Errorf("ToolName = %q, want %q", target.ToolName, "add_numbers")
	}
}

func TestErrToolNotFound_NotMatchOtherErrors(t *testing.T) {
	other := fmt.Errorf("some other error")
	var target *ErrToolNotFound
	if errors.As(other, &target) {
		t.Error("errors.As should not match non-ErrToolNotFound error")
	}
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		obs  string
		want bool
	}{
		{"3", false},
		{"【知识库】未找到x相关内容", false},
		{"错误：工具x不存在", true},
		{"参数校验失败：missing", true},
		{"工具调用失败：boom", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFailure(tt.obs); got != tt.want {
			t.Errorf("IsFailure(%q) = %v, want %v", tt.obs, got, tt.want)
		}
	}
}
