package store

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/utils/log"
)

// FileSessionTracker persists the active character name in a single JSON
// file at the process root. Reads fail open: a missing or corrupt file means
// no recorded session, never an error.
type FileSessionTracker struct {
	path string
}

func NewFileSessionTracker(path string) *FileSessionTracker {
	return &FileSessionTracker{path: path}
}

var _ domain.SessionTracker = (*FileSessionTracker)(nil)

func (t *FileSessionTracker) RecordActive(name string) error {
	return writeJSONAtomic(t.path, domain.SessionPointer{CharacterName: name})
}

func (t *FileSessionTracker) ReadActive() string {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.With(zap.String("path", t.path), zap.Error(err)).Warn("Failed to read session pointer")
		}
		return ""
	}

	var pointer domain.SessionPointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		log.With(zap.String("path", t.path), zap.Error(err)).Warn("Corrupt session pointer, ignoring")
		return ""
	}
	return pointer.CharacterName
}

func (t *FileSessionTracker) ResetToDefault() error {
	return t.RecordActive(domain.DefaultCharacter)
}
