package tools

import (
	"context"
	"strconv"
	"strings"
)

// AddNumbersInput is the argument object of add_numbers.
type AddNumbersInput struct {
	A float64 `json:"a" jsonschema_description:"第一个加数"`
	B float64 `json:"b" jsonschema_description:"第二个加数"`
}

// SearchKnowledgeInput is the argument object of search_knowledge.
type SearchKnowledgeInput struct {
	Query string `json:"query" jsonschema_description:"用户问题的关键词"`
}

// knowledge entries are checked in order; the first key contained in the
// query wins.
var knowledge = []struct{ key, value string }{
	{"核心技能", "数字媒体专业核心技能：1.3D建模（Blender/C4D）；2.交互设计（Figma/AXURE）；3.影视剪辑（PR/AE）；4.AIGC工具（Midjourney/Runway）；5.游戏美术基础"},
	{"核心课程", "数字媒体专业核心课程：素描、色彩构成、数字图像处理、三维建模、影视编导、交互设计原理、游戏概论、新媒体运营"},
	{"就业方向", "数字媒体专业就业方向：创意类（剪辑师/3D设计师）、设计类（UI/UX/游戏美术）、运营类（新媒体/短视频编导）、稳定类（政企宣传/教育讲师）"},
	{"常用工具", "剪辑：PR/AE/剪映；建模：Blender/C4D；设计：Figma/PS/AI；AIGC：Midjourney/Runway；游戏引擎：Unity"},
}

// AddNumbersTool sums two numbers and renders the shortest exact form,
// so 1+2 yields "3".
func AddNumbersTool() *Tool {
	return NewTypedTool("add_numbers", "计算两个数字的和",
		func(_ context.Context, in AddNumbersInput) (string, error) {
			return strconv.FormatFloat(in.A+in.B, 'g', -1, 64), nil
		})
}

// SearchKnowledgeTool answers questions about the digital media major
// from a fixed keyword map.
func SearchKnowledgeTool() *Tool {
	return NewTypedTool("search_knowledge",
		"检索数字媒体专业的核心技能、核心课程、就业方向、常用工具等专业信息，输入为用户问题的纯文本关键词",
		func(_ context.Context, in SearchKnowledgeInput) (string, error) {
			return SearchKnowledge(in.Query), nil
		})
}

// SearchKnowledge looks up query in the knowledge map.
func SearchKnowledge(query string) string {
	for _, e := range knowledge {
		if strings.Contains(query, e.key) {
			return "【知识库】" + e.value
		}
	}
	return "【知识库】未找到" + query + "相关内容，可询问核心技能、核心课程、就业方向、常用工具等问题。"
}

// RegisterBuiltins adds the built-in tools to r.
func RegisterBuiltins(r *Registry) error {
	for _, t := range []*Tool{AddNumbersTool(), SearchKnowledgeTool()} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
