package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"characterchat/config"
	"characterchat/domain"
)

type serviceFixture struct {
	service       *ChatService
	characters    *memCharacterStore
	conversations *memConversationStore
	assets        *memAssetStore
	session       *memSessionTracker
	chat          *scriptedChat
	image         *scriptedImage
	broker        *recordingBroker
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		characters:    newMemCharacterStore(),
		conversations: newMemConversationStore(),
		assets:        newMemAssetStore(),
		session:       &memSessionTracker{},
		chat:          &scriptedChat{},
		image:         &scriptedImage{png: []byte("png-bytes")},
		broker:        newRecordingBroker(),
	}
	f.service = NewChatService(Storage{
		Characters:    f.characters,
		Conversations: f.conversations,
		Assets:        f.assets,
		Session:       f.session,
	}, f.chat, f.image, f.broker, config.DefaultGeneration())
	return f
}

func TestSendStreamsAndPersists(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "You are Alice.")
	f.chat.fragments = []string{"Hel", "lo"}

	rs, err := f.service.Send(context.Background(), "Alice", "hi")
	require.NoError(t, err)

	var last domain.Snapshot
	for snap := range rs.Snapshots() {
		last = snap
	}
	require.NoError(t, rs.Wait())

	require.True(t, last.Final)
	require.Equal(t, "Alice", last.Character)
	require.Equal(t, []domain.Message{
		domain.TextMessage(domain.RoleUser, "hi"),
		domain.TextMessage(domain.RoleAssistant, "Hello"),
	}, last.History)

	reply, ok := rs.Reply()
	require.True(t, ok)
	require.Equal(t, "Hello", reply.Text)

	saved, err := f.conversations.Load("Alice")
	require.NoError(t, err)
	require.Equal(t, last.History, saved.History)
	require.Equal(t, 1, f.conversations.saveCount())
	require.Positive(t, f.broker.published(domain.SnapshotTopic))
}

func TestSendComposesRequestWithPersona(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "You are Alice.")
	f.conversations.Save("Alice", domain.Conversation{History: []domain.Message{
		domain.TextMessage(domain.RoleUser, "earlier"),
		domain.TextMessage(domain.RoleAssistant, "stale tail"),
	}})
	f.conversations.saves = 0
	f.chat.fragments = []string{"ok"}

	rs, err := f.service.Send(context.Background(), "Alice", "hi")
	require.NoError(t, err)
	require.NoError(t, rs.Wait())

	// System turn first, stale trailing assistant dropped, new user turn last.
	require.Equal(t, []domain.Message{
		domain.TextMessage(domain.RoleSystem, "You are Alice."),
		domain.TextMessage(domain.RoleUser, "earlier"),
		domain.TextMessage(domain.RoleUser, "hi"),
	}, f.chat.requests[0])

	// The stale assistant turn stays in the persisted history.
	saved, _ := f.conversations.Load("Alice")
	require.Equal(t, "stale tail", saved.History[1].Text)
	require.Len(t, saved.History, 4)
}

func TestSendEmptyPersonaOmitsSystemTurn(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create(domain.DefaultCharacter, "")
	f.chat.fragments = []string{"ok"}

	rs, err := f.service.Send(context.Background(), domain.DefaultCharacter, "hi")
	require.NoError(t, err)
	require.NoError(t, rs.Wait())

	require.Equal(t, []domain.Message{
		domain.TextMessage(domain.RoleUser, "hi"),
	}, f.chat.requests[0])
}

func TestSendEmptyMessage(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "")

	_, err := f.service.Send(context.Background(), "Alice", "   ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSendUnknownCharacter(t *testing.T) {
	f := newServiceFixture()
	_, err := f.service.Send(context.Background(), "Nobody", "hi")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendBackendUnavailableLeavesStateUntouched(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "")
	f.chat.streamErr = domain.ErrBackendUnavailable

	_, err := f.service.Send(context.Background(), "Alice", "hi")
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)

	require.Equal(t, 0, f.conversations.saveCount())
	require.Equal(t, 0, f.broker.published(domain.SnapshotTopic))
}

func TestSendStreamAbortDiscardsPartialReply(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "")
	f.chat.fragments = []string{"par", "tial"}
	f.chat.endErr = errors.New("connection reset")

	rs, err := f.service.Send(context.Background(), "Alice", "hi")
	require.NoError(t, err)

	for range rs.Snapshots() {
	}
	require.Error(t, rs.Wait())

	_, ok := rs.Reply()
	require.False(t, ok)
	require.Equal(t, 0, f.conversations.saveCount())
}

func TestSendEmptyReplyIsStillPersisted(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "")
	f.chat.fragments = nil

	rs, err := f.service.Send(context.Background(), "Alice", "hi")
	require.NoError(t, err)
	require.NoError(t, rs.Wait())

	saved, _ := f.conversations.Load("Alice")
	require.Equal(t, []domain.Message{
		domain.TextMessage(domain.RoleUser, "hi"),
		domain.TextMessage(domain.RoleAssistant, ""),
	}, saved.History)
}

func TestSendCancellationPersistsNothing(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "")
	f.chat.fragments = []string{"par"}
	f.chat.block = true

	rs, err := f.service.Send(context.Background(), "Alice", "hi")
	require.NoError(t, err)

	// Consume the first snapshot, then abort.
	select {
	case <-rs.Snapshots():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first snapshot")
	}
	rs.Cancel()

	require.Error(t, rs.Wait())
	require.Equal(t, 0, f.conversations.saveCount())
}

func TestSendImageRequest(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "You are Alice.")
	f.chat.completion = "a golden sunset over the sea"

	rs, err := f.service.Send(context.Background(), "Alice", "Show me a sunset")
	require.NoError(t, err)
	require.NoError(t, rs.Wait())

	// The prompter saw the persona and the literal user request.
	require.Len(t, f.chat.prompts, 1)
	require.Contains(t, f.chat.prompts[0], "You are Alice.")
	require.Contains(t, f.chat.prompts[0], "Show me a sunset")

	// The image backend got the composed prompt plus quality tags.
	require.Len(t, f.image.requests, 1)
	req := f.image.requests[0]
	require.Contains(t, req.Prompt, "a golden sunset over the sea")
	require.Contains(t, req.Prompt, "masterpiece")
	require.Equal(t, int64(-1), req.Seed)
	require.Equal(t, 25, req.Steps)

	// The chat stream path never ran.
	require.Empty(t, f.chat.requests)

	// History ends with the user turn and a media turn pointing at the asset.
	saved, _ := f.conversations.Load("Alice")
	require.Len(t, saved.History, 2)
	media := saved.History[1]
	require.True(t, media.IsMedia())
	require.Equal(t, domain.RoleAssistant, media.Role)
	require.Contains(t, media.Media.Path, "Alice_")
	require.Equal(t, []byte("png-bytes"), f.assets.assets[media.Media.Path])

	reply, ok := rs.Reply()
	require.True(t, ok)
	require.True(t, reply.IsMedia())
}

func TestSendImageGenerationFailureLeavesStateUntouched(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "")
	f.chat.completion = "composed"
	f.image.err = domain.ErrGenerationFailed

	_, err := f.service.Send(context.Background(), "Alice", "show me a dog")
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	require.Equal(t, 0, f.conversations.saveCount())
}

func TestIsImageRequest(t *testing.T) {
	require.True(t, isImageRequest("show me a sunset"))
	require.True(t, isImageRequest("Please SHOW ME the garden"))
	require.False(t, isImageRequest("hello there"))
	require.False(t, isImageRequest("showing off"))
}

func TestCreateCharacterGeneratesAvatar(t *testing.T) {
	f := newServiceFixture()

	ch, err := f.service.CreateCharacter(context.Background(), "Alice", "You are Alice.")
	require.NoError(t, err)
	require.NotEmpty(t, ch.AvatarPath)
	require.Equal(t, "Alice", f.session.ReadActive())

	// Avatar generation uses the avatar step count and the name in the prompt.
	require.Len(t, f.image.requests, 1)
	require.Equal(t, 20, f.image.requests[0].Steps)
	require.Contains(t, f.image.requests[0].Prompt, "Alice")

	stored, err := f.characters.Get("Alice")
	require.NoError(t, err)
	require.Equal(t, ch.AvatarPath, stored.AvatarPath)
	require.Equal(t, 1, f.broker.published(domain.CharacterTopic))
}

func TestCreateCharacterSurvivesAvatarFailure(t *testing.T) {
	f := newServiceFixture()
	f.image.err = domain.ErrBackendUnavailable

	ch, err := f.service.CreateCharacter(context.Background(), "Alice", "persona")
	require.NoError(t, err)
	require.Empty(t, ch.AvatarPath)

	stored, err := f.characters.Get("Alice")
	require.NoError(t, err)
	require.Equal(t, "persona", stored.SystemPrompt)
}

func TestSwitchCharacter(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "a")
	f.conversations.Save("Alice", domain.Conversation{History: []domain.Message{
		domain.TextMessage(domain.RoleUser, "hi"),
	}})

	ch, conv, err := f.service.SwitchCharacter(context.Background(), "Alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", ch.Name)
	require.Len(t, conv.History, 1)
	require.Equal(t, "Alice", f.session.ReadActive())

	_, _, err = f.service.SwitchCharacter(context.Background(), "Nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, "Alice", f.session.ReadActive())
}

func TestRemoveActiveCharacterFallsBackToDefault(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "a")
	f.session.RecordActive("Alice")

	require.NoError(t, f.service.RemoveCharacter(context.Background(), "Alice"))
	require.Equal(t, domain.DefaultCharacter, f.session.ReadActive())
	require.Equal(t, 1, f.broker.published(domain.CharacterTopic))
}

func TestRemoveInactiveCharacterKeepsSession(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "a")
	f.characters.Create("Bob", "b")
	f.session.RecordActive("Alice")

	require.NoError(t, f.service.RemoveCharacter(context.Background(), "Bob"))
	require.Equal(t, "Alice", f.session.ReadActive())
}

func TestRemoveDefaultCharacter(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create(domain.DefaultCharacter, "")

	err := f.service.RemoveCharacter(context.Background(), domain.DefaultCharacter)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestStartSessionFirstRunCreatesDefault(t *testing.T) {
	f := newServiceFixture()

	ch, conv, err := f.service.StartSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.DefaultCharacter, ch.Name)
	require.Empty(t, conv.History)
	require.Equal(t, domain.DefaultCharacter, f.session.ReadActive())
}

func TestStartSessionResumesActiveCharacter(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "a")
	f.conversations.Save("Alice", domain.Conversation{History: []domain.Message{
		domain.TextMessage(domain.RoleUser, "hi"),
	}})
	f.session.RecordActive("Alice")

	ch, conv, err := f.service.StartSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Alice", ch.Name)
	require.Len(t, conv.History, 1)
}

func TestStartSessionDanglingPointerFallsBack(t *testing.T) {
	f := newServiceFixture()
	f.session.RecordActive("Gone")

	ch, _, err := f.service.StartSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.DefaultCharacter, ch.Name)
	require.Equal(t, domain.DefaultCharacter, f.session.ReadActive())
}

func TestListCharacters(t *testing.T) {
	f := newServiceFixture()
	f.characters.Create("Alice", "a")
	f.characters.Create("Bob", "b")
	f.session.RecordActive("Bob")

	names, active, err := f.service.ListCharacters()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Alice", "Bob"}, names)
	require.Equal(t, "Bob", active)
}
