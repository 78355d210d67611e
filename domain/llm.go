package domain

import "context"

// ChatBackend abstracts the language-model service.
type ChatBackend interface {
	// StreamChat opens a streaming chat completion for the given message
	// sequence. The caller owns the returned stream and must Close it.
	StreamChat(ctx context.Context, messages []Message) (ChatStream, error)

	// Complete performs a single non-streaming completion, used for prompt
	// composition ahead of image generation.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ChatStream yields incremental reply fragments. Recv returns io.EOF once
// the backend signals end of stream. Fragments that fail to parse are
// skipped, not surfaced; Skipped reports how many were dropped so far.
type ChatStream interface {
	Recv() (string, error)
	Skipped() int
	Close() error
}

// ImageRequest carries the txt2img parameters for one generation.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	CfgScale       float64
	Sampler        string
	Scheduler      string
	Seed           int64
}

// ImageResult is a generated artifact. PNG holds the encoded image with the
// generation-parameters blob already embedded as metadata; Params is the raw
// blob as returned by the backend.
type ImageResult struct {
	PNG    []byte
	Params string
}

// ImageBackend abstracts the image-generation service.
type ImageBackend interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}
