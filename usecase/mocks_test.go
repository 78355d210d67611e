package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"characterchat/domain"
)

// In-memory fakes for the ports ChatService depends on.

type memCharacterStore struct {
	mu         sync.Mutex
	characters map[string]domain.Character
}

func newMemCharacterStore() *memCharacterStore {
	return &memCharacterStore{characters: map[string]domain.Character{}}
}

func (s *memCharacterStore) Create(name, systemPrompt string) (domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		return domain.Character{}, fmt.Errorf("%w: empty name", domain.ErrInvalidArgument)
	}
	ch := domain.Character{Name: name, SystemPrompt: systemPrompt, LastUpdated: time.Now().Format(time.RFC3339)}
	s.characters[name] = ch
	return ch, nil
}

func (s *memCharacterStore) Get(name string) (domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.characters[name]
	if !ok {
		return domain.Character{}, fmt.Errorf("%w: character %q", domain.ErrNotFound, name)
	}
	return ch, nil
}

func (s *memCharacterStore) Update(ch domain.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[ch.Name] = ch
	return nil
}

func (s *memCharacterStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	for name := range s.characters {
		names = append(names, name)
	}
	return names, nil
}

func (s *memCharacterStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == domain.DefaultCharacter {
		return fmt.Errorf("%w: %q cannot be removed", domain.ErrPermissionDenied, name)
	}
	if _, ok := s.characters[name]; !ok {
		return fmt.Errorf("%w: character %q", domain.ErrNotFound, name)
	}
	delete(s.characters, name)
	return nil
}

type memConversationStore struct {
	mu            sync.Mutex
	conversations map[string]domain.Conversation
	saves         int
	saveErr       error
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{conversations: map[string]domain.Conversation{}}
}

func (s *memConversationStore) Load(name string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[name]
	if !ok {
		return domain.Conversation{History: []domain.Message{}}, nil
	}
	return conv, nil
}

func (s *memConversationStore) Save(name string, conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.conversations[name] = conv
	return nil
}

func (s *memConversationStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type memAssetStore struct {
	mu     sync.Mutex
	assets map[string][]byte
	err    error
}

func newMemAssetStore() *memAssetStore {
	return &memAssetStore{assets: map[string][]byte{}}
}

func (s *memAssetStore) SaveAsset(character, filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	path := filepath.Join("chat_data", character, "assets", filename)
	s.assets[path] = data
	return path, nil
}

type memSessionTracker struct {
	mu     sync.Mutex
	active string
}

func (t *memSessionTracker) RecordActive(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = name
	return nil
}

func (t *memSessionTracker) ReadActive() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *memSessionTracker) ResetToDefault() error {
	return t.RecordActive(domain.DefaultCharacter)
}

// scriptedStream replays fragments, then ends with endErr (io.EOF for a
// normal stream). With block set it waits for ctx cancellation instead of
// ending.
type scriptedStream struct {
	ctx       context.Context
	fragments []string
	next      int
	endErr    error
	block     bool
	closed    bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.next < len(s.fragments) {
		fragment := s.fragments[s.next]
		s.next++
		return fragment, nil
	}
	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.endErr != nil {
		return "", s.endErr
	}
	return "", io.EOF
}

func (s *scriptedStream) Skipped() int { return 0 }

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// scriptedChat serves one scripted stream per StreamChat call and a fixed
// Complete result. It records the request messages it saw.
type scriptedChat struct {
	mu        sync.Mutex
	fragments []string
	endErr    error
	block     bool
	streamErr error

	completion    string
	completionErr error

	requests   [][]domain.Message
	prompts    []string
	lastStream *scriptedStream
}

func (c *scriptedChat) StreamChat(ctx context.Context, messages []domain.Message) (domain.ChatStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, messages)
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	c.lastStream = &scriptedStream{ctx: ctx, fragments: c.fragments, endErr: c.endErr, block: c.block}
	return c.lastStream, nil
}

func (c *scriptedChat) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.completionErr != nil {
		return "", c.completionErr
	}
	return c.completion, nil
}

// scriptedImage returns fixed PNG bytes and records requests.
type scriptedImage struct {
	mu       sync.Mutex
	png      []byte
	err      error
	requests []domain.ImageRequest
}

func (b *scriptedImage) GenerateImage(ctx context.Context, req domain.ImageRequest) (domain.ImageResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return domain.ImageResult{}, b.err
	}
	return domain.ImageResult{PNG: b.png, Params: "Steps: 25"}, nil
}

// recordingBroker captures published payloads per topic.
type recordingBroker struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newRecordingBroker() *recordingBroker {
	return &recordingBroker{payloads: map[string][][]byte{}}
}

func (b *recordingBroker) Publish(ctx context.Context, topic, routingKey string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads[topic] = append(b.payloads[topic], payload)
	return nil
}

func (b *recordingBroker) Subscribe(ctx context.Context, topic, routingKey string) (<-chan domain.Event, error) {
	return make(chan domain.Event), nil
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) published(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads[topic])
}
