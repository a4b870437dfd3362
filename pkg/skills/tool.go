// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/tools"
)

// ToolPrefix is prepended to the skill name to form the tool name.
const ToolPrefix = "skill_"

// Tool actions.
const (
	ActionActivate      = "activate"
	ActionLoadResource  = "load_resource"
	ActionListResources = "list_resources"
)

// resourceDirs are the skill subdirectories exposed as resources.
var resourceDirs = []string{"scripts", "references", "assets"}

type skillArgs struct {
	Action   string `json:"action,omitempty" jsonschema:"enum=activate,enum=load_resource,enum=list_resources,description=activate returns the instructions; load_resource returns one file"`
	Resource string `json:"resource,omitempty" jsonschema:"description=Resource path relative to the skill directory (load_resource only)"`
}

// Activation is what the model receives when it activates a skill.
type Activation struct {
	Name         string   `json:"name"`
	Instructions string   `json:"instructions"`
	Resources    []string `json:"resources,omitempty"`
}

// SkillTool exposes a skill to the model. The model sees the description
// first and gets the full instructions only when it calls the tool.
type SkillTool struct {
	spec SkillSpec
}

// NewSkillTool creates a SkillTool from a SkillSpec.
func NewSkillTool(spec SkillSpec) *SkillTool {
	return &SkillTool{spec: spec}
}

// ToolName maps a skill name to a tool name.
func ToolName(skill string) string {
	return ToolPrefix + strings.ReplaceAll(skill, "-", "_")
}

func (s *SkillTool) Name() string { return ToolName(s.spec.Name) }

func (s *SkillTool) Definition() llm.Tool {
	return tools.Function(s.Name(), s.spec.Description, tools.Schema[skillArgs]())
}

func (s *SkillTool) Call(_ context.Context, args map[string]any) (string, error) {
	in, err := tools.Decode[skillArgs](args)
	if err != nil {
		return "", errors.InvalidInput("invalid skill arguments: " + err.Error())
	}
	switch in.Action {
	case "", ActionActivate:
		return s.activate()
	case ActionLoadResource:
		return s.loadResource(in.Resource)
	case ActionListResources:
		return strings.Join(s.listResources(), "\n"), nil
	}
	return "", errors.InvalidInput(fmt.Sprintf("unknown skill action %q", in.Action))
}

// Spec returns the underlying SkillSpec.
func (s *SkillTool) Spec() SkillSpec {
	return s.spec
}

func (s *SkillTool) activate() (string, error) {
	data, err := json.Marshal(Activation{
		Name:         s.spec.Name,
		Instructions: s.spec.Body,
		Resources:    s.listResources(),
	})
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "encode skill activation", err)
	}
	return string(data), nil
}

// loadResource reads a file below the skill directory.
func (s *SkillTool) loadResource(resourcePath string) (string, error) {
	if resourcePath == "" {
		return "", errors.InvalidInput("resource path is required")
	}
	clean := filepath.Clean(resourcePath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", errors.InvalidInput("invalid resource path: " + resourcePath)
	}
	absDir, err := filepath.Abs(s.spec.Dir)
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "resolve skill directory", err)
	}
	fullPath := filepath.Join(absDir, clean)
	if !strings.HasPrefix(fullPath, absDir+string(filepath.Separator)) {
		return "", errors.InvalidInput("resource path outside skill directory")
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "load resource "+resourcePath, err)
	}
	return string(data), nil
}

func (s *SkillTool) listResources() []string {
	var resources []string
	for _, sub := range resourceDirs {
		entries, err := os.ReadDir(filepath.Join(s.spec.Dir, sub))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				resources = append(resources, filepath.Join(sub, entry.Name()))
			}
		}
	}
	return resources
}

// Tools wraps every spec as a tool.
func Tools(specs []SkillSpec) []tools.Tool {
	out := make([]tools.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, NewSkillTool(spec))
	}
	return out
}
