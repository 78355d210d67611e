package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/utils/log"
)

const (
	chatEndpoint   = "/api/chat"
	defaultTimeout = 2 * time.Minute

	// maxLineSize bounds a single NDJSON fragment line.
	maxLineSize = 1 * 1024 * 1024
)

// Client talks to an Ollama-compatible chat API. Streaming responses arrive
// as newline-delimited JSON objects, each carrying a partial
// message.content fragment, terminated by an object flagged done.
type Client struct {
	baseURL       string
	chatModel     string
	prompterModel string
	httpClient    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithChatModel sets the model used for conversation streaming.
func WithChatModel(model string) Option {
	return func(c *Client) { c.chatModel = model }
}

// WithPrompterModel sets the model used for prompt composition.
func WithPrompterModel(model string) Option {
	return func(c *Client) { c.prompterModel = model }
}

// WithHTTPClient sets a custom HTTP client. The client used for streaming
// must not carry a timeout; per-read cancellation comes from the context.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates an Ollama client against baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       baseURL,
		chatModel:     "gemma3:4b",
		prompterModel: "gemma3:4b",
		httpClient:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domain.ChatBackend = (*Client)(nil)

// wireMessage is the {role, content} shape on the wire. Media turns are sent
// as their path so the model sees a stable reference.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// StreamChat opens a streaming chat completion. A connection-level failure
// is reported as ErrBackendUnavailable and no stream is returned.
func (c *Client) StreamChat(ctx context.Context, messages []domain.Message) (domain.ChatStream, error) {
	resp, err := c.post(ctx, chatPayload{
		Model:    c.chatModel,
		Messages: toWire(messages),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &stream{ctx: ctx, body: resp.Body, scanner: scanner}, nil
}

// Complete performs a single non-streaming completion with a system prompt,
// used to compose image-generation prompts.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []wireMessage{}
	if system != "" {
		messages = append(messages, wireMessage{Role: string(domain.RoleSystem), Content: system})
	}
	messages = append(messages, wireMessage{Role: string(domain.RoleUser), Content: prompt})

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.post(ctx, chatPayload{Model: c.prompterModel, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chunk chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return "", fmt.Errorf("%w: decoding completion: %v", domain.ErrGenerationFailed, err)
	}
	if chunk.Message.Content == "" {
		return "", fmt.Errorf("%w: completion returned no content", domain.ErrGenerationFailed)
	}
	return chunk.Message.Content, nil
}

func (c *Client) post(ctx context.Context, payload chatPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: chat API returned status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	return resp, nil
}

func toWire(messages []domain.Message) []wireMessage {
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		content := m.Text
		if m.Media != nil {
			content = m.Media.Path
		}
		wire[i] = wireMessage{Role: string(m.Role), Content: content}
	}
	return wire
}

// stream reads NDJSON fragments off the response body. Lines that fail to
// parse are skipped and counted; a bad fragment never aborts the stream.
type stream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	skipped int
	done    bool
}

func (s *stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.skipped++
			log.WithCtx(s.ctx).Debug("Skipped unparsable stream fragment", zap.Error(err))
			continue
		}

		if chunk.Done {
			s.done = true
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
			return "", io.EOF
		}
		return chunk.Message.Content, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *stream) Skipped() int { return s.skipped }

func (s *stream) Close() error {
	if s.skipped > 0 {
		log.WithCtx(s.ctx).Warn("Stream finished with skipped fragments", zap.Int("skipped", s.skipped))
	}
	return s.body.Close()
}
