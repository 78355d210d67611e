package domain

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MediaKind tags the variant of a media reference.
type MediaKind string

const MediaImage MediaKind = "image"

// Media is a reference to an artifact on disk, typically a generated image
// under a character's assets directory.
type Media struct {
	Kind MediaKind `json:"type"`
	Path string    `json:"path"`
}

// Message is one turn of a conversation. Content is a union: exactly one of
// Text or Media carries the payload. On the wire and on disk, content is
// either a JSON string or a {"type","path"} object.
type Message struct {
	Role  Role
	Text  string
	Media *Media
}

// TextMessage builds a plain text turn.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// MediaMessage builds an image-reference turn.
func MediaMessage(role Role, path string) Message {
	return Message{Role: role, Media: &Media{Kind: MediaImage, Path: path}}
}

// IsMedia reports whether the message carries a media reference rather than text.
func (m Message) IsMedia() bool {
	return m.Media != nil
}

type messageJSON struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Text
	if m.Media != nil {
		content = m.Media
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{Role: m.Role, Content: raw})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Text = ""
	m.Media = nil
	if len(raw.Content) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		m.Text = text
		return nil
	}

	var media Media
	if err := json.Unmarshal(raw.Content, &media); err != nil {
		return fmt.Errorf("message content is neither text nor media: %w", err)
	}
	m.Media = &media
	return nil
}
