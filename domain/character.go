package domain

// DefaultCharacter is the distinguished character that always exists and can
// never be removed.
const DefaultCharacter = "Default Chat"

// Character is the identity of a persona. Name is the immutable unique key;
// renaming is not supported.
type Character struct {
	Name         string `json:"character_name"`
	SystemPrompt string `json:"system_prompt"`
	AvatarPath   string `json:"avatar_path"`
	LastUpdated  string `json:"last_updated"`
}

// Conversation is the full message log owned by exactly one character.
// History holds only user/assistant turns; the system turn is synthesized
// from the persona at send time and never stored.
type Conversation struct {
	History   []Message `json:"history"`
	Timestamp string    `json:"timestamp"`
}

// SessionPointer records which character was last active across restarts.
// It is a weak reference: the named character may have been removed since.
type SessionPointer struct {
	CharacterName string `json:"character_name"`
}

// Snapshot is a materialized conversation view handed to callers while an
// assistant reply is streaming. Each snapshot supersedes the previous one;
// Final marks the persisted end state.
type Snapshot struct {
	Character string    `json:"character"`
	History   []Message `json:"history"`
	Final     bool      `json:"final"`
}
