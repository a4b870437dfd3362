package skills

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, root, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSkill(t, t.TempDir(), "world-clock", `---
name: world-clock
description: Tells the time in other cities.
tags: [time, timezone, time]
examples:
  - What time is it in Tokyo?
allowed-tools: current_time  weather_*
---

Convert the local time with the city's offset.
`)

	skill, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if skill.Name != "world-clock" || skill.Body != "Convert the local time with the city's offset." {
		t.Fatalf("unexpected skill %+v", skill)
	}
	if !reflect.DeepEqual(skill.Tags, []string{"time", "timezone"}) {
		t.Fatalf("unexpected tags %v", skill.Tags)
	}
	if !reflect.DeepEqual(skill.AllowedTools, []string{"current_time", "weather_*"}) {
		t.Fatalf("unexpected allowed tools %v", skill.AllowedTools)
	}

	card := skill.AgentSkill()
	if card.ID != "world-clock" || card.Description != "Tells the time in other cities." || len(card.Examples) != 1 {
		t.Fatalf("unexpected card skill %+v", card)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		dir     string
		content string
		want    string
	}{
		{"no frontmatter", "plain", "just text", "missing frontmatter"},
		{"dir mismatch", "other-dir", "---\nname: clock\ndescription: d\n---\n", "directory name"},
		{"bad name", "Clock", "---\nname: Clock\ndescription: d\n---\n", "name must match"},
		{"no description", "clock", "---\nname: clock\n---\n", "description is required"},
		{"bad tags", "tagged", "---\nname: tagged\ndescription: d\ntags: {a: b}\n---\n", "tags must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSkill(t, root, tt.dir, tt.content)
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "code-review", "---\nname: code-review\ndescription: Review code changes.\n---\n")
	writeSkill(t, root, "announce", "---\nname: announce\ndescription: Drafts announcements.\n---\n")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	skills, err := LoadDir(root)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(skills) != 2 || skills[0].Name != "announce" || skills[1].Name != "code-review" {
		t.Fatalf("unexpected skills %+v", skills)
	}
}
