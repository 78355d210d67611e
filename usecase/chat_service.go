package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"characterchat/config"
	"characterchat/domain"
	"characterchat/utils/log"
)

// imageTrigger routes a user message to the image path. A deliberately
// literal substring match, not intent classification.
const imageTrigger = "show me"

// assetTimestampFormat tags generated images so repeated generations for the
// same character never collide.
const assetTimestampFormat = "20060102_150405"

// randomSeed delegates seed randomization to the image backend.
const randomSeed = -1

// Storage bundles the persistence ports the service depends on.
type Storage struct {
	Characters    domain.CharacterStore
	Conversations domain.ConversationStore
	Assets        domain.AssetStore
	Session       domain.SessionTracker
}

// ChatService owns the session lifecycle: character identity, conversation
// persistence, and the routing of user messages to the text or image
// generation path.
type ChatService struct {
	storage Storage
	chat    domain.ChatBackend
	image   domain.ImageBackend
	broker  domain.MessageBroker
	gen     config.Generation
	locks   *characterLocks
}

func NewChatService(storage Storage, chat domain.ChatBackend, image domain.ImageBackend, broker domain.MessageBroker, gen config.Generation) *ChatService {
	return &ChatService{
		storage: storage,
		chat:    chat,
		image:   image,
		broker:  broker,
		gen:     gen,
		locks:   newCharacterLocks(),
	}
}

// StartSession resolves the character that was active before the last
// shutdown and loads its conversation. A dangling or absent session pointer
// falls back to the default character, creating it on first run.
func (s *ChatService) StartSession(ctx context.Context) (domain.Character, domain.Conversation, error) {
	name := s.storage.Session.ReadActive()
	if name == "" {
		name = domain.DefaultCharacter
	}

	ch, err := s.storage.Characters.Get(name)
	if errors.Is(err, domain.ErrNotFound) && name != domain.DefaultCharacter {
		log.WithCtx(ctx).Warn("Active character is gone, falling back to default", zap.String("character", name))
		name = domain.DefaultCharacter
		ch, err = s.storage.Characters.Get(name)
	}
	if errors.Is(err, domain.ErrNotFound) {
		ch, err = s.storage.Characters.Create(domain.DefaultCharacter, "")
	}
	if err != nil {
		return domain.Character{}, domain.Conversation{}, err
	}

	if err := s.storage.Session.RecordActive(ch.Name); err != nil {
		return domain.Character{}, domain.Conversation{}, err
	}

	conv, err := s.storage.Conversations.Load(ch.Name)
	if err != nil {
		return domain.Character{}, domain.Conversation{}, err
	}
	return ch, conv, nil
}

// CreateCharacter upserts a character, generates its avatar, and makes it
// the active character. Avatar generation is best-effort: a character
// without an avatar is still usable, so a backend failure is logged and the
// creation stands.
func (s *ChatService) CreateCharacter(ctx context.Context, name, systemPrompt string) (domain.Character, error) {
	lock := s.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	ch, err := s.storage.Characters.Create(name, systemPrompt)
	if err != nil {
		return domain.Character{}, err
	}

	if avatarPath, err := s.generateAvatar(ctx, ch); err != nil {
		log.WithCtx(ctx).Warn("Avatar generation failed, character created without one",
			zap.String("character", name), zap.Error(err))
	} else {
		ch.AvatarPath = avatarPath
		if err := s.storage.Characters.Update(ch); err != nil {
			return domain.Character{}, err
		}
	}

	if err := s.storage.Session.RecordActive(name); err != nil {
		return domain.Character{}, err
	}

	s.publishCharacterEvent(ctx, name, "metadata")
	log.WithCtx(ctx).Info("✨ Character created", zap.String("character", name))
	return ch, nil
}

func (s *ChatService) generateAvatar(ctx context.Context, ch domain.Character) (string, error) {
	prompt := fmt.Sprintf(s.gen.AvatarTemplate, ch.Name, ch.SystemPrompt)
	result, err := s.image.GenerateImage(ctx, domain.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: s.gen.NegativePrompt,
		Width:          s.gen.Width,
		Height:         s.gen.Height,
		Steps:          s.gen.AvatarSteps,
		CfgScale:       s.gen.CfgScale,
		Sampler:        s.gen.Sampler,
		Scheduler:      s.gen.Scheduler,
		Seed:           randomSeed,
	})
	if err != nil {
		return "", err
	}
	return s.storage.Assets.SaveAsset(ch.Name, "avatar.png", result.PNG)
}

// SwitchCharacter makes name the active character and returns its state.
func (s *ChatService) SwitchCharacter(ctx context.Context, name string) (domain.Character, domain.Conversation, error) {
	ch, err := s.storage.Characters.Get(name)
	if err != nil {
		return domain.Character{}, domain.Conversation{}, err
	}

	conv, err := s.storage.Conversations.Load(name)
	if err != nil {
		return domain.Character{}, domain.Conversation{}, err
	}

	if err := s.storage.Session.RecordActive(name); err != nil {
		return domain.Character{}, domain.Conversation{}, err
	}
	return ch, conv, nil
}

// RemoveCharacter backs up the character's data. If it was the active
// character the session falls back to the default.
func (s *ChatService) RemoveCharacter(ctx context.Context, name string) error {
	lock := s.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	if err := s.storage.Characters.Remove(name); err != nil {
		return err
	}

	if s.storage.Session.ReadActive() == name {
		if err := s.storage.Session.ResetToDefault(); err != nil {
			return err
		}
	}

	s.publishCharacterEvent(ctx, name, "removed")
	return nil
}

// ListCharacters enumerates known characters and the active one.
func (s *ChatService) ListCharacters() ([]string, string, error) {
	names, err := s.storage.Characters.List()
	if err != nil {
		return nil, "", err
	}
	return names, s.storage.Session.ReadActive(), nil
}

// Character returns a character's persisted metadata.
func (s *ChatService) Character(name string) (domain.Character, error) {
	return s.storage.Characters.Get(name)
}

// History returns a character's conversation.
func (s *ChatService) History(name string) (domain.Conversation, error) {
	return s.storage.Conversations.Load(name)
}

// Send routes a new user message for the named character and drives the
// matching generation path. The returned ReplyStream yields growing
// snapshots for the text path; the image path runs synchronously and the
// stream is already finalized on return. Upfront failures (unknown
// character, unreachable backend, failed generation) return an error and
// leave the conversation exactly as it was: no snapshot has been yielded
// and nothing was persisted.
func (s *ChatService) Send(ctx context.Context, name, text string) (*ReplyStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidArgument)
	}

	lock := s.locks.get(name)
	lock.Lock()

	ch, err := s.storage.Characters.Get(name)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	conv, err := s.storage.Conversations.Load(name)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	userMsg := domain.TextMessage(domain.RoleUser, text)
	ctx = context.WithValue(ctx, "character", name)
	ctx, cancel := context.WithCancel(ctx)

	if isImageRequest(text) {
		defer lock.Unlock()
		rs, err := s.sendImage(ctx, ch, conv, userMsg, cancel)
		if err != nil {
			cancel()
			return nil, err
		}
		return rs, nil
	}

	stream, err := s.chat.StreamChat(ctx, composeRequest(ch, conv.History, userMsg))
	if err != nil {
		cancel()
		lock.Unlock()
		return nil, err
	}

	rs := newReplyStream(cancel)
	go s.assemble(ctx, ch, conv, userMsg, stream, rs, lock)
	return rs, nil
}

// isImageRequest applies the literal routing rule.
func isImageRequest(text string) bool {
	return strings.Contains(strings.ToLower(text), imageTrigger)
}

// composeRequest builds the backend message sequence: optional persona
// system turn, stored history, then the new user turn. A stale trailing
// assistant turn is dropped from the request only; it stays in the
// persisted history.
func composeRequest(ch domain.Character, history []domain.Message, userMsg domain.Message) []domain.Message {
	messages := make([]domain.Message, 0, len(history)+2)
	if ch.SystemPrompt != "" {
		messages = append(messages, domain.TextMessage(domain.RoleSystem, ch.SystemPrompt))
	}

	if n := len(history); n > 0 && history[n-1].Role == domain.RoleAssistant {
		history = history[:n-1]
	}
	messages = append(messages, history...)
	return append(messages, userMsg)
}

// assemble drains the backend stream, growing the assistant reply fragment
// by fragment and republishing the snapshot after each one. The
// conversation is saved exactly once, after end of stream; an aborted
// stream persists nothing.
func (s *ChatService) assemble(ctx context.Context, ch domain.Character, conv domain.Conversation, userMsg domain.Message, stream domain.ChatStream, rs *ReplyStream, lock *sync.Mutex) {
	defer lock.Unlock()
	defer stream.Close()

	base := append(slices.Clone(conv.History), userMsg)
	var reply strings.Builder

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.WithCtx(ctx).Error("Stream aborted, discarding partial reply", zap.Error(err))
			rs.fail(err)
			return
		}

		reply.WriteString(fragment)
		snap := domain.Snapshot{
			Character: ch.Name,
			History:   append(slices.Clone(base), domain.TextMessage(domain.RoleAssistant, reply.String())),
		}
		rs.publish(snap)
		s.broadcastSnapshot(ctx, snap)
	}

	// An empty reply is still a reply; it is appended and saved like any other.
	final := domain.TextMessage(domain.RoleAssistant, reply.String())
	conv.History = append(conv.History, userMsg, final)
	if err := s.storage.Conversations.Save(ch.Name, conv); err != nil {
		rs.fail(err)
		return
	}

	snap := domain.Snapshot{Character: ch.Name, History: conv.History, Final: true}
	rs.publish(snap)
	s.broadcastSnapshot(ctx, snap)
	rs.succeed(final)

	log.WithCtx(ctx).Info("💬 Reply finalized",
		zap.Int("history_len", len(conv.History)),
		zap.Int("skipped_fragments", stream.Skipped()))
}

// sendImage drives the image path: compose a prompt through the language
// model, generate, store the artifact, append the media turn, persist once.
// Every step must succeed before anything is appended.
func (s *ChatService) sendImage(ctx context.Context, ch domain.Character, conv domain.Conversation, userMsg domain.Message, cancel context.CancelFunc) (*ReplyStream, error) {
	request := fmt.Sprintf(s.gen.PrompterRequest, ch.SystemPrompt, userMsg.Text)
	composed, err := s.chat.Complete(ctx, s.gen.PrompterSystem, request)
	if err != nil {
		return nil, err
	}

	result, err := s.image.GenerateImage(ctx, domain.ImageRequest{
		Prompt:         composed + s.gen.QualityTags,
		NegativePrompt: s.gen.NegativePrompt,
		Width:          s.gen.Width,
		Height:         s.gen.Height,
		Steps:          s.gen.Steps,
		CfgScale:       s.gen.CfgScale,
		Sampler:        s.gen.Sampler,
		Scheduler:      s.gen.Scheduler,
		Seed:           randomSeed,
	})
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s_%s.png", ch.Name, time.Now().Format(assetTimestampFormat))
	path, err := s.storage.Assets.SaveAsset(ch.Name, filename, result.PNG)
	if err != nil {
		return nil, err
	}

	media := domain.MediaMessage(domain.RoleAssistant, path)
	conv.History = append(conv.History, userMsg, media)
	if err := s.storage.Conversations.Save(ch.Name, conv); err != nil {
		return nil, err
	}

	rs := newReplyStream(cancel)
	snap := domain.Snapshot{Character: ch.Name, History: conv.History, Final: true}
	rs.publish(snap)
	s.broadcastSnapshot(ctx, snap)
	rs.succeed(media)

	log.WithCtx(ctx).Info("🖼️ Image reply persisted", zap.String("path", path))
	return rs, nil
}

func (s *ChatService) broadcastSnapshot(ctx context.Context, snap domain.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.WithCtx(ctx).Error("Failed to marshal snapshot", zap.Error(err))
		return
	}
	if err := s.broker.Publish(ctx, domain.SnapshotTopic, "", payload); err != nil {
		log.WithCtx(ctx).Debug("Snapshot publish dropped", zap.Error(err))
	}
}

func (s *ChatService) publishCharacterEvent(ctx context.Context, name, change string) {
	payload, err := json.Marshal(domain.CharacterEvent{
		Character: name,
		Change:    change,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	if err := s.broker.Publish(ctx, domain.CharacterTopic, "", payload); err != nil {
		log.WithCtx(ctx).Debug("Character event publish dropped", zap.Error(err))
	}
}
