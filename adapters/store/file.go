package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/utils/log"
)

const (
	metadataFile = "metadata.json"
	chatFile     = "chat.json"
	assetsDir    = "assets"

	timestampFormat = time.RFC3339
	backupFormat    = "20060102_150405"
)

// FileStore persists characters and conversations as one directory per
// character under root:
//
//	<root>/<name>/metadata.json
//	<root>/<name>/chat.json
//	<root>/<name>/assets/...
//
// Removal moves the whole character directory under backupRoot, tagged with
// a timestamp. Nothing is ever hard-deleted.
type FileStore struct {
	root       string
	backupRoot string
}

// NewFileStore creates the store root if needed and returns the store.
func NewFileStore(root, backupRoot string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating store root: %v", domain.ErrStorageFailure, err)
	}
	return &FileStore{root: root, backupRoot: backupRoot}, nil
}

var (
	_ domain.CharacterStore    = (*FileStore)(nil)
	_ domain.ConversationStore = (*FileStore)(nil)
	_ domain.AssetStore        = (*FileStore)(nil)
)

// Create upserts character metadata. Existing metadata for the same name is
// overwritten silently.
func (s *FileStore) Create(name, systemPrompt string) (domain.Character, error) {
	if err := validName(name); err != nil {
		return domain.Character{}, err
	}

	if err := os.MkdirAll(filepath.Join(s.characterDir(name), assetsDir), 0o755); err != nil {
		return domain.Character{}, fmt.Errorf("%w: creating character dir: %v", domain.ErrStorageFailure, err)
	}

	ch := domain.Character{
		Name:         name,
		SystemPrompt: systemPrompt,
		LastUpdated:  time.Now().Format(timestampFormat),
	}
	if err := writeJSONAtomic(s.metadataPath(name), ch); err != nil {
		return domain.Character{}, err
	}
	return ch, nil
}

// Get reads persisted metadata for name.
func (s *FileStore) Get(name string) (domain.Character, error) {
	data, err := os.ReadFile(s.metadataPath(name))
	if os.IsNotExist(err) {
		return domain.Character{}, fmt.Errorf("%w: character %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return domain.Character{}, fmt.Errorf("%w: reading metadata for %q: %v", domain.ErrStorageFailure, name, err)
	}

	var ch domain.Character
	if err := json.Unmarshal(data, &ch); err != nil {
		return domain.Character{}, fmt.Errorf("%w: decoding metadata for %q: %v", domain.ErrStorageFailure, name, err)
	}
	return ch, nil
}

// Update fully overwrites stored metadata and stamps the update time.
func (s *FileStore) Update(ch domain.Character) error {
	if err := validName(ch.Name); err != nil {
		return err
	}
	ch.LastUpdated = time.Now().Format(timestampFormat)
	return writeJSONAtomic(s.metadataPath(ch.Name), ch)
}

// List enumerates all character names known to the store.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: listing store root: %v", domain.ErrStorageFailure, err)
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(s.metadataPath(entry.Name())); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Remove moves the character's directory to the backup area. The default
// character is never removable.
func (s *FileStore) Remove(name string) error {
	if name == domain.DefaultCharacter {
		return fmt.Errorf("%w: %q cannot be removed", domain.ErrPermissionDenied, name)
	}
	if err := validName(name); err != nil {
		return err
	}

	dir := s.characterDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: character %q", domain.ErrNotFound, name)
	}

	if err := os.MkdirAll(s.backupRoot, 0o755); err != nil {
		return fmt.Errorf("%w: creating backup root: %v", domain.ErrStorageFailure, err)
	}
	target := filepath.Join(s.backupRoot, name+"_"+time.Now().Format(backupFormat))
	if err := os.Rename(dir, target); err != nil {
		return fmt.Errorf("%w: backing up %q: %v", domain.ErrStorageFailure, name, err)
	}

	log.With(zap.String("character", name), zap.String("backup", target)).Info("📦 Character moved to backup")
	return nil
}

// rawConversation is the on-disk shape before normalization. History is kept
// loose so legacy encodings load without errors.
type rawConversation struct {
	History   []any  `json:"history"`
	Timestamp string `json:"timestamp"`
}

// Load reads the conversation for name. A missing file yields an empty
// conversation; so does an unreadable one, since rendering an empty history
// beats failing the whole session. Every element is run through the history
// normalizer so legacy shapes on disk keep loading.
func (s *FileStore) Load(name string) (domain.Conversation, error) {
	empty := domain.Conversation{History: []domain.Message{}}

	data, err := os.ReadFile(s.chatPath(name))
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		log.With(zap.String("character", name), zap.Error(err)).Error("Failed to read conversation, starting empty")
		return empty, nil
	}

	var raw rawConversation
	if err := json.Unmarshal(data, &raw); err != nil {
		log.With(zap.String("character", name), zap.Error(err)).Error("Failed to decode conversation, starting empty")
		return empty, nil
	}

	history, dropped := domain.NormalizeHistory(raw.History)
	if dropped > 0 {
		log.With(zap.String("character", name), zap.Int("dropped", dropped)).Warn("Dropped unrecognized history elements")
	}
	return domain.Conversation{History: history, Timestamp: raw.Timestamp}, nil
}

// Save overwrites the full conversation and stamps the save timestamp.
func (s *FileStore) Save(name string, conv domain.Conversation) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.characterDir(name), 0o755); err != nil {
		return fmt.Errorf("%w: creating character dir: %v", domain.ErrStorageFailure, err)
	}
	conv.Timestamp = time.Now().Format(timestampFormat)
	if conv.History == nil {
		conv.History = []domain.Message{}
	}
	return writeJSONAtomic(s.chatPath(name), conv)
}

// SaveAsset writes a generated artifact under the character's assets
// directory and returns the stored path.
func (s *FileStore) SaveAsset(character, filename string, data []byte) (string, error) {
	if err := validName(character); err != nil {
		return "", err
	}
	dir := filepath.Join(s.characterDir(character), assetsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating assets dir: %v", domain.ErrStorageFailure, err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: writing asset %s: %v", domain.ErrStorageFailure, path, err)
	}
	return path, nil
}

// Root returns the store root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) characterDir(name string) string {
	return filepath.Join(s.root, name)
}

func (s *FileStore) metadataPath(name string) string {
	return filepath.Join(s.characterDir(name), metadataFile)
}

func (s *FileStore) chatPath(name string) string {
	return filepath.Join(s.characterDir(name), chatFile)
}

// validName rejects names that cannot serve as a storage key before any I/O
// happens.
func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: invalid character name %q", domain.ErrInvalidArgument, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: character name %q contains a path separator", domain.ErrInvalidArgument, name)
	}
	return nil
}

// writeJSONAtomic writes v as indented JSON through a temp file and rename,
// so readers never observe a partial file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", domain.ErrStorageFailure, path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", domain.ErrStorageFailure, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replacing %s: %v", domain.ErrStorageFailure, path, err)
	}
	return nil
}
