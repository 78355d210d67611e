package domain

// CharacterStore persists character identity. Implementations are keyed by
// character name; operations on different names are independent.
type CharacterStore interface {
	// Create upserts metadata for name. An existing character's metadata is
	// overwritten silently. Fails with ErrInvalidArgument before any I/O if
	// name is empty or unusable as a storage key.
	Create(name, systemPrompt string) (Character, error)

	// Get reads persisted metadata; ErrNotFound if none exists.
	Get(name string) (Character, error)

	// Update fully overwrites stored metadata for ch.Name.
	Update(ch Character) error

	// List enumerates all known character names.
	List() ([]string, error)

	// Remove moves the character's on-disk data to a timestamped backup
	// location. Data is never deleted. Removing DefaultCharacter fails with
	// ErrPermissionDenied.
	Remove(name string) error
}

// ConversationStore persists one conversation per character. Save is the
// sole mutation primitive: every save rewrites the whole history.
type ConversationStore interface {
	// Load returns the persisted conversation, or an empty one if nothing
	// was ever saved. A fresh character is not an error.
	Load(name string) (Conversation, error)

	// Save overwrites the full conversation and stamps the save timestamp.
	Save(name string, conv Conversation) error
}

// AssetStore writes generated artifacts under a character's asset directory
// and returns the stored path.
type AssetStore interface {
	SaveAsset(character, filename string, data []byte) (string, error)
}

// SessionTracker remembers the active character across restarts.
type SessionTracker interface {
	// RecordActive persists name as the session pointer.
	RecordActive(name string) error

	// ReadActive returns the last recorded name, or "" if none was recorded
	// or the pointer file is absent or corrupt. It fails open, never errors.
	ReadActive() string

	// ResetToDefault points the session back at DefaultCharacter.
	ResetToDefault() error
}
