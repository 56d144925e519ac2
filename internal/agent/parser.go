package agent

import (
	"encoding/json"
	"strings"
)

// Line labels of the step format. Each label may be followed by a
// full-width or ASCII colon.
const (
	LabelThought     = "思考"
	LabelAction      = "行动"
	LabelActionInput = "行动输入"
	LabelObservation = "观察"
	LabelFinalAnswer = "最终答案"
)

// none is the literal a model writes for an absent field.
const none = "None"

// Decision is one parsed generator reply.
type Decision struct {
	Thought     string
	Action      string         // "" when absent or None
	ActionInput map[string]any // never nil
	Observation string
	FinalAnswer string

	// Malformed is set when 行动输入 was present but not a JSON object.
	Malformed bool
}

// HasAction reports whether the reply asks for a tool call.
func (d Decision) HasAction() bool { return d.Action != "" }

// HasFinalAnswer reports whether the reply ends the turn.
func (d Decision) HasFinalAnswer() bool { return d.FinalAnswer != "" }

// labels is ordered so that a label is tried before any shorter label it
// starts with (行动输入 before 行动).
var labels = []string{LabelActionInput, LabelAction, LabelThought, LabelObservation, LabelFinalAnswer}

// Parse reads a generator reply line by line. Leading whitespace is
// ignored, a later occurrence of a field overwrites an earlier one, and
// unrecognised lines are skipped. Parse never fails; absent fields are
// empty.
func Parse(text string) Decision {
	d := Decision{ActionInput: map[string]any{}}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		label, value, ok := splitLabel(strings.TrimLeft(line, " \t　"))
		if !ok {
			continue
		}
		switch label {
		case LabelThought:
			d.Thought = value
		case LabelAction:
			d.Action = normalizeAction(value)
		case LabelActionInput:
			d.ActionInput, d.Malformed = parseInput(value)
		case LabelObservation:
			d.Observation = dropNone(value)
		case LabelFinalAnswer:
			d.FinalAnswer = dropNone(value)
		}
	}
	return d
}

func splitLabel(line string) (label, value string, ok bool) {
	for _, l := range labels {
		rest, found := strings.CutPrefix(line, l)
		if !found {
			continue
		}
		for _, colon := range []string{"：", ":"} {
			if v, found := strings.CutPrefix(rest, colon); found {
				return l, strings.TrimSpace(v), true
			}
		}
	}
	return "", "", false
}

func dropNone(v string) string {
	if v == none {
		return ""
	}
	return v
}

// normalizeAction strips the brackets and backticks models copy from the
// format description.
func normalizeAction(v string) string {
	v = strings.Trim(v, "[]`【】 ")
	return dropNone(v)
}

func parseInput(v string) (map[string]any, bool) {
	if v == "" || v == none {
		return map[string]any{}, false
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(v), &args); err != nil || args == nil {
		return map[string]any{}, true
	}
	return args, false
}
