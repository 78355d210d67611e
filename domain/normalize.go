package domain

import (
	"path/filepath"
	"strings"
)

// imageExtensions are the suffixes that make a bare string count as an image
// reference when normalizing legacy history shapes.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// NormalizeHistory coerces a history supplied from any source into canonical
// Messages. Three legacy encodings are tolerated: a (userText, assistantText)
// pair expands into two turns, a single-element tuple holding a path becomes
// a media turn, and a bare string ending in an image extension becomes a
// media turn. Canonical {role, content} elements pass through unchanged.
// Unrecognized elements are dropped, never raised; the second return value
// counts the drops so callers can log them.
func NormalizeHistory(raw []any) ([]Message, int) {
	history := make([]Message, 0, len(raw))
	dropped := 0
	for _, element := range raw {
		msgs, ok := normalizeElement(element)
		if !ok {
			dropped++
			continue
		}
		history = append(history, msgs...)
	}
	return history, dropped
}

func normalizeElement(element any) ([]Message, bool) {
	switch v := element.(type) {
	case Message:
		return []Message{v}, true
	case map[string]any:
		msg, ok := normalizeCanonical(v)
		if !ok {
			return nil, false
		}
		return []Message{msg}, true
	case []any:
		return normalizeTuple(v)
	case string:
		if IsImagePath(v) {
			return []Message{MediaMessage(RoleAssistant, v)}, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// normalizeCanonical accepts the canonical {role, content} dict shape.
func normalizeCanonical(v map[string]any) (Message, bool) {
	role, ok := v["role"].(string)
	if !ok || role == "" {
		return Message{}, false
	}
	switch content := v["content"].(type) {
	case string:
		return TextMessage(Role(role), content), true
	case map[string]any:
		path, ok := content["path"].(string)
		if !ok {
			return Message{}, false
		}
		return MediaMessage(Role(role), path), true
	default:
		return Message{}, false
	}
}

// normalizeTuple handles the two tuple-style legacy shapes: the
// (user, assistant) exchange pair and the one-element media path.
func normalizeTuple(v []any) ([]Message, bool) {
	switch len(v) {
	case 1:
		path, ok := v[0].(string)
		if !ok {
			return nil, false
		}
		return []Message{MediaMessage(RoleAssistant, path)}, true
	case 2:
		user, uok := v[0].(string)
		assistant, aok := v[1].(string)
		if !uok || !aok {
			return nil, false
		}
		return []Message{
			TextMessage(RoleUser, user),
			TextMessage(RoleAssistant, assistant),
		}, true
	default:
		return nil, false
	}
}

// IsImagePath reports whether s ends in a known image extension.
func IsImagePath(s string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(s))]
}
