package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"characterchat/domain"
)

func TestSessionRecordAndRead(t *testing.T) {
	tracker := NewFileSessionTracker(filepath.Join(t.TempDir(), "last_chat.json"))

	require.NoError(t, tracker.RecordActive("Alice"))
	require.Equal(t, "Alice", tracker.ReadActive())
}

func TestSessionReadMissingFile(t *testing.T) {
	tracker := NewFileSessionTracker(filepath.Join(t.TempDir(), "last_chat.json"))
	require.Equal(t, "", tracker.ReadActive())
}

func TestSessionReadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_chat.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	tracker := NewFileSessionTracker(path)
	require.Equal(t, "", tracker.ReadActive())
}

func TestSessionResetToDefault(t *testing.T) {
	tracker := NewFileSessionTracker(filepath.Join(t.TempDir(), "last_chat.json"))

	require.NoError(t, tracker.RecordActive("Alice"))
	require.NoError(t, tracker.ResetToDefault())
	require.Equal(t, domain.DefaultCharacter, tracker.ReadActive())
}
