package prompts

import (
	"fmt"
	"strings"
)

// Length limits applied to user-supplied prompt parts, in runes.
const (
	MaxRoleRunes = 100
	MaxRuleRunes = 50
)

// DefaultRole is used when no role is configured.
const DefaultRole = "你是友好的AI助手，按ReAct规则回答问题。"

// DefaultRules are used when no reply rules are configured.
var DefaultRules = []string{
	"优先使用工具获取准确结果；",
	"结合对话历史补充上下文；",
	"用简洁的中文回复，不啰嗦；",
	"无需工具时直接给出最终答案。",
}

// reactTemplate describes the step format. Its line prefixes must match
// the ones the agent parser recognises.
const reactTemplate = `【角色设定】：%s
【ReAct执行规则】：
1. 你拥有以下工具：
%s
2. 执行步骤：
   a. 思考：分析用户问题，判断是否需要调用工具
   b. 行动：如需调用，指定工具名称（必须是已提供的工具）
   c. 行动输入：工具入参（JSON格式，需匹配工具入参要求）
   d. 观察：工具返回结果（由系统提供，不要自己编写）
   e. 最终答案：基于工具结果回答用户问题
3. 输出格式（严格遵守，每项单独一行）：
   思考：[你的思考]
   行动：[工具名称/None]
   行动输入：[JSON对象/None]
   最终答案：[给用户的回复，调用工具时留空]
【回复规则】：
%s`

// System assembles system instructions from a role, reply rules, and
// skill documents.
type System struct {
	role   string
	rules  []string
	skills []string
}

// NewSystem returns a builder. An empty role or rule list falls back to
// DefaultRole / DefaultRules.
func NewSystem(role string, rules []string) *System {
	s := &System{role: FormatRole(role)}
	if s.role == "" {
		s.role = FormatRole(DefaultRole)
	}
	if len(rules) == 0 {
		rules = DefaultRules
	}
	s.rules = rules
	return s
}

// WithSkills returns a copy of s that appends the given skill texts as a
// "技能说明" section.
func (s *System) WithSkills(skills ...string) *System {
	c := *s
	c.skills = append(append([]string(nil), s.skills...), skills...)
	return &c
}

// Role returns the formatted role text.
func (s *System) Role() string { return s.role }

// Build renders the instruction for the given tool descriptions (one
// "- name：description" line per tool).
func (s *System) Build(toolDescriptions string) string {
	if strings.TrimSpace(toolDescriptions) == "" {
		toolDescriptions = "（无）"
	}
	out := fmt.Sprintf(reactTemplate, s.role, toolDescriptions, FormatRules(s.rules))

	var skills []string
	for _, sk := range s.skills {
		if sk = strings.TrimSpace(sk); sk != "" {
			skills = append(skills, "- "+sk)
		}
	}
	if len(skills) > 0 {
		out += "\n【技能说明】：\n" + strings.Join(skills, "\n")
	}
	return out
}

// FormatRole trims and caps a role description at MaxRoleRunes.
func FormatRole(role string) string {
	return strings.TrimSpace(truncateRunes(strings.TrimSpace(role), MaxRoleRunes))
}

// FormatRules caps each rule at MaxRuleRunes, drops empty ones, and
// numbers the rest from 1.
func FormatRules(rules []string) string {
	var lines []string
	for _, r := range rules {
		r = strings.TrimSpace(truncateRunes(strings.TrimSpace(r), MaxRuleRunes))
		if r == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, r))
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
