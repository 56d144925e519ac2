package agent

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Decision
	}{
		{
			name: "tool call",
			in:   "思考：sum\n行动：add_numbers\n行动输入：{\"a\":1,\"b\":2}\n",
			want: Decision{Thought: "sum", Action: "add_numbers", ActionInput: map[string]any{"a": float64(1), "b": float64(2)}},
		},
		{
			name: "thought only",
			in:   "思考：sure, 2",
			want: Decision{Thought: "sure, 2", ActionInput: map[string]any{}},
		},
		{
			name: "final answer with None fields",
			in:   "思考：无需工具\n行动：None\n行动输入：None\n观察：None\n最终答案：你好",
			want: Decision{Thought: "无需工具", ActionInput: map[string]any{}, FinalAnswer: "你好"},
		},
		{
			name: "ascii colons and indentation",
			in:   "   思考: x\n\t行动: add_numbers\n  行动输入: {\"a\": 3}",
			want: Decision{Thought: "x", Action: "add_numbers", ActionInput: map[string]any{"a": float64(3)}},
		},
		{
			name: "later lines overwrite",
			in:   "思考：first\n思考：second",
			want: Decision{Thought: "second", ActionInput: map[string]any{}},
		},
		{
			name: "unrecognised lines ignored",
			in:   "Sure! Here is my answer.\n最终答案：42\n(end)",
			want: Decision{ActionInput: map[string]any{}, FinalAnswer: "42"},
		},
		{
			name: "malformed action input",
			in:   "行动：add_numbers\n行动输入：a=1, b=2",
			want: Decision{Action: "add_numbers", ActionInput: map[string]any{}, Malformed: true},
		},
		{
			name: "action input must be an object",
			in:   "行动：add_numbers\n行动输入：[1, 2]",
			want: Decision{Action: "add_numbers", ActionInput: map[string]any{}, Malformed: true},
		},
		{
			name: "bracketed action",
			in:   "行动：[add_numbers]",
			want: Decision{Action: "add_numbers", ActionInput: map[string]any{}},
		},
		{
			name: "crlf line endings",
			in:   "思考：a\r\n最终答案：b\r\n",
			want: Decision{Thought: "a", ActionInput: map[string]any{}, FinalAnswer: "b"},
		},
		{
			name: "label without colon is not a field",
			in:   "思考过程很长\n行动是必要的",
			want: Decision{ActionInput: map[string]any{}},
		},
		{
			name: "empty",
			in:   "",
			want: Decision{ActionInput: map[string]any{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecisionPredicates(t *testing.T) {
	d := Parse("行动：None\n最终答案：None")
	if d.HasAction() || d.HasFinalAnswer() {
		t.Errorf("None must count as absent: %+v", d)
	}
}
