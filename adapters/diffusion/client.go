package diffusion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/utils/log"
)

const (
	txt2imgEndpoint = "/sdapi/v1/txt2img"

	// Image generation is slow; the backend regularly takes minutes.
	defaultTimeout = 5 * time.Minute
)

// Client talks to an AUTOMATIC1111-compatible txt2img API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a diffusion client against baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domain.ImageBackend = (*Client)(nil)

type txt2imgPayload struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Steps          int     `json:"steps"`
	CfgScale       float64 `json:"cfg_scale"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	SamplerName    string  `json:"sampler_name"`
	Scheduler      string  `json:"scheduler"`
	Seed           int64   `json:"seed"`
}

type txt2imgResponse struct {
	Images []string        `json:"images"`
	Info   json.RawMessage `json:"info"`
}

// GenerateImage calls txt2img and returns the first image with the
// generation-parameters blob embedded as a PNG tEXt chunk.
func (c *Client) GenerateImage(ctx context.Context, req domain.ImageRequest) (domain.ImageResult, error) {
	payload := txt2imgPayload{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		CfgScale:       req.CfgScale,
		Width:          req.Width,
		Height:         req.Height,
		SamplerName:    req.Sampler,
		Scheduler:      req.Scheduler,
		Seed:           req.Seed,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("marshaling txt2img payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+txt2imgEndpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("creating txt2img request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ImageResult{}, fmt.Errorf("%w: txt2img returned status %d", domain.ErrGenerationFailed, resp.StatusCode)
	}

	var result txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.ImageResult{}, fmt.Errorf("%w: decoding txt2img response: %v", domain.ErrGenerationFailed, err)
	}
	if len(result.Images) == 0 {
		return domain.ImageResult{}, fmt.Errorf("%w: txt2img returned no images", domain.ErrGenerationFailed)
	}

	png, err := decodeImage(result.Images[0])
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	params := string(result.Info)
	withParams, err := EmbedParameters(png, params)
	if err != nil {
		// The raw image is still usable; ship it without metadata.
		log.WithCtx(ctx).Warn("Failed to embed generation parameters", zap.Error(err))
		withParams = png
	}

	return domain.ImageResult{PNG: withParams, Params: params}, nil
}

// decodeImage handles both bare base64 payloads and data-URI style
// "type,payload" values.
func decodeImage(encoded string) ([]byte, error) {
	if i := strings.IndexByte(encoded, ','); i >= 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 image: %w", err)
	}
	return data, nil
}
