// Package skills loads skill descriptions from SKILL.md files. A skill is
// advertised on the agent card and, for agents backed by a model, offered
// as a tool that returns its instructions on demand.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/agora/pkg/a2a"
)

// FileName is the file looked up in every skill directory.
const FileName = "SKILL.md"

// SkillSpec is one parsed SKILL.md.
type SkillSpec struct {
	Name         string
	Description  string
	Tags         []string
	Examples     []string
	InputModes   []string
	OutputModes  []string
	AllowedTools []string
	// Body holds the markdown after the frontmatter.
	Body string
	Path string
	Dir  string
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadDir scans root for subdirectories holding a SKILL.md. Directories
// without one are skipped.
func LoadDir(root string) ([]SkillSpec, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []SkillSpec
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(root, entry.Name(), FileName)
		if _, err := os.Stat(skillPath); err != nil {
			continue
		}
		skill, err := LoadFile(skillPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", skillPath, err)
		}
		out = append(out, skill)
	}
	return out, nil
}

// LoadFile parses a single SKILL.md file.
func LoadFile(path string) (SkillSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SkillSpec{}, err
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return SkillSpec{}, err
	}
	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return SkillSpec{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	allowed, err := normalizeList("allowed-tools", parsed.AllowedTools)
	if err != nil {
		return SkillSpec{}, err
	}
	tags, err := normalizeList("tags", parsed.Tags)
	if err != nil {
		return SkillSpec{}, err
	}
	spec := SkillSpec{
		Name:         strings.TrimSpace(parsed.Name),
		Description:  strings.TrimSpace(parsed.Description),
		Tags:         tags,
		Examples:     parsed.Examples,
		InputModes:   parsed.InputModes,
		OutputModes:  parsed.OutputModes,
		AllowedTools: allowed,
		Body:         body,
		Path:         path,
		Dir:          filepath.Dir(path),
	}
	if err := validate(spec); err != nil {
		return SkillSpec{}, err
	}
	return spec, nil
}

// AgentSkill converts the spec into the skill advertised on the card.
func (s SkillSpec) AgentSkill() a2a.AgentSkill {
	return a2a.AgentSkill{
		ID:          s.Name,
		Name:        s.Name,
		Description: s.Description,
		Tags:        s.Tags,
		Examples:    s.Examples,
		InputModes:  s.InputModes,
		OutputModes: s.OutputModes,
	}
}

type frontmatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Tags         any      `yaml:"tags"`
	Examples     []string `yaml:"examples"`
	InputModes   []string `yaml:"input-modes"`
	OutputModes  []string `yaml:"output-modes"`
	AllowedTools any      `yaml:"allowed-tools"`
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", errors.New("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", errors.New("invalid frontmatter")
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func validate(spec SkillSpec) error {
	if spec.Name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(spec.Name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(spec.Name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if dirName := filepath.Base(spec.Dir); dirName != spec.Name {
		return fmt.Errorf("name must match directory name (%s)", dirName)
	}
	if spec.Description == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(spec.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	return nil
}

// normalizeList accepts either a space separated string or a YAML list.
func normalizeList(field string, value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return dedupe(strings.Fields(v)), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a list of strings", field)
			}
			out = append(out, str)
		}
		return dedupe(out), nil
	}
	return nil, fmt.Errorf("%s must be a string or a list", field)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
