package a2a

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartType discriminates the content of a Part.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeData PartType = "data"
	PartTypeFile PartType = "file"
)

// FileContent references file content either inline or by URI.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Part is one content item of a message or artifact.
type Part struct {
	Type     PartType       `json:"type"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	File     *FileContent   `json:"file,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// DataPart builds a structured data part.
func DataPart(data map[string]any) Part {
	return Part{Type: PartTypeData, Data: data}
}

// Message is one conversational turn.
type Message struct {
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewTextMessage builds a message with a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:      role,
		Parts:     []Part{TextPart(text)},
		Timestamp: time.Now().UTC(),
	}
}

// Text concatenates the text parts of the message. Data parts are rendered
// as compact JSON so they remain visible to text-only reasoning steps.
func (m Message) Text() string {
	var parts []string
	for _, part := range m.Parts {
		switch part.Type {
		case PartTypeText:
			if part.Text != "" {
				parts = append(parts, part.Text)
			}
		case PartTypeData:
			if raw, err := json.Marshal(part.Data); err == nil {
				parts = append(parts, string(raw))
			}
		case PartTypeFile:
			if part.File != nil && part.File.URI != "" {
				parts = append(parts, part.File.URI)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// IsEmpty reports whether the message carries no usable content.
func (m Message) IsEmpty() bool {
	for _, part := range m.Parts {
		switch part.Type {
		case PartTypeText:
			if strings.TrimSpace(part.Text) != "" {
				return false
			}
		case PartTypeData:
			if len(part.Data) > 0 {
				return false
			}
		case PartTypeFile:
			if part.File != nil {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, part := range m.Parts {
			out.Parts[i] = part.clone()
		}
	}
	out.Metadata = cloneMap(m.Metadata)
	return out
}

func (p Part) clone() Part {
	out := p
	out.Data = cloneMap(p.Data)
	out.Metadata = cloneMap(p.Metadata)
	if p.File != nil {
		file := *p.File
		out.File = &file
	}
	return out
}

// Artifact is an output produced by a task, distinct from its messages.
type Artifact struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parts       []Part `json:"parts"`
	Index       int    `json:"index"`
}

// Clone returns a deep copy of the artifact.
func (a Artifact) Clone() Artifact {
	out := a
	if a.Parts != nil {
		out.Parts = make([]Part, len(a.Parts))
		for i, part := range a.Parts {
			out.Parts[i] = part.clone()
		}
	}
	return out
}

// cloneMap copies nested maps and slices produced by encoding/json.
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return value
	}
}
