// Package skills loads skill documents: markdown files that tell the
// model how to use a tool, injected into the system instruction as
// plain text.
package skills

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// DefaultText stands in for a skill document that cleans to nothing.
const DefaultText = `默认规则：使用 add_numbers 完成加法计算，参数格式 {"a": 数字1, "b": 数字2}`

// Skill is one parsed skill document.
type Skill struct {
	Name        string   // filename without .md
	Description string   // from frontmatter
	Tools       []string // tools the skill depends on; nil = always applies
	Text        string   // cleaned plain text
}

type frontmatter struct {
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools"`
}

// Loader reads skill documents from a filesystem.
type Loader struct {
	fsys fs.FS
}

// NewLoader reads skills from fsys.
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// NewDirLoader reads skills from a directory on disk.
func NewDirLoader(dir string) *Loader {
	return &Loader{fsys: os.DirFS(dir)}
}

// LoadAll parses every top-level .md file, sorted by name. A missing
// directory yields no skills.
func (l *Loader) LoadAll() ([]Skill, error) {
	if l.fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	skills := make([]Skill, 0, len(files))
	for _, f := range files {
		data, err := fs.ReadFile(l.fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read skill %s: %w", f, err)
		}
		s, err := Parse(strings.TrimSuffix(path.Base(f), ".md"), data)
		if err != nil {
			return nil, fmt.Errorf("parse skill %s: %w", f, err)
		}
		skills = append(skills, s)
	}
	return skills, nil
}

// Parse splits optional YAML frontmatter from a skill document and
// cleans the markdown body.
func Parse(name string, raw []byte) (Skill, error) {
	s := Skill{Name: name}
	body := raw

	if fm, rest, ok := splitFrontmatter(raw); ok {
		var meta frontmatter
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			return Skill{}, fmt.Errorf("frontmatter: %w", err)
		}
		s.Description = meta.Description
		if len(meta.Tools) > 0 {
			s.Tools = meta.Tools
		}
		body = rest
	}

	s.Text = Clean(body)
	return s, nil
}

// splitFrontmatter separates a leading "---" delimited block.
func splitFrontmatter(raw []byte) (fm, rest []byte, ok bool) {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, raw, false
	}
	after := normalized[4:]
	end := bytes.Index(after, []byte("\n---"))
	if end < 0 {
		return nil, raw, false
	}
	rest = after[end+4:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 && len(bytes.TrimSpace(rest[:i])) == 0 {
		rest = rest[i+1:]
	}
	return after[:end], rest, true
}

var whitespace = regexp.MustCompile(`\s+`)

// Clean renders markdown as a single line of plain text: markup such as
// heading marks and code backticks disappears, and all whitespace runs
// collapse to one space. An empty result becomes DefaultText.
func Clean(md []byte) string {
	var sb strings.Builder
	doc := goldmark.DefaultParser().Parse(text.NewReader(md))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				sb.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(md))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(md))
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			sb.Write(node.URL(md))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	out := strings.TrimSpace(whitespace.ReplaceAllString(sb.String(), " "))
	if out == "" {
		return DefaultText
	}
	return out
}

// Applicable returns the skills whose tools are all available. Skills
// without a tools list always apply.
func Applicable(skills []Skill, available map[string]bool) []Skill {
	var out []Skill
	for _, s := range skills {
		ok := true
		for _, t := range s.Tools {
			if !available[t] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, s)
		}
	}
	return out
}

// Texts returns the cleaned text of each skill.
func Texts(skills []Skill) []string {
	out := make([]string, len(skills))
	for i, s := range skills {
		out[i] = s.Text
	}
	return out
}
