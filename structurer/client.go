package structurer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	// DefaultBaseURL is the public Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultModel is the model used for structuring and elaboration.
	DefaultModel = "gemini-2.5-flash"

	defaultTimeout      = 60 * time.Second
	defaultMaxAttempts  = 3
	defaultInitialDelay = 500 * time.Millisecond
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY environment variable not set")

// Generator produces a JSON document for a prompt, constrained by schema.
type Generator interface {
	Generate(ctx context.Context, prompt string, schema Schema) (string, error)
}

// GeminiClient calls the Gemini generateContent endpoint in JSON mode.
type GeminiClient struct {
	apiKey       string
	model        string
	baseURL      string
	maxAttempts  int
	initialDelay time.Duration
	httpClient   *http.Client
}

// ClientOption configures a GeminiClient.
type ClientOption func(*GeminiClient)

func WithModel(model string) ClientOption {
	return func(c *GeminiClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithBaseURL(u string) ClientOption {
	return func(c *GeminiClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey overrides the key read from the environment.
func WithAPIKey(key string) ClientOption {
	return func(c *GeminiClient) {
		if key != "" {
			c.apiKey = key
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *GeminiClient) {
		c.httpClient.Timeout = timeout
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *GeminiClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry sets the attempt budget and the first backoff delay, which
// doubles on every retry.
func WithRetry(maxAttempts int, initialDelay time.Duration) ClientOption {
	return func(c *GeminiClient) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if initialDelay >= 0 {
			c.initialDelay = initialDelay
		}
	}
}

// NewGeminiClient reads GEMINI_API_KEY (or API_KEY) from the environment.
func NewGeminiClient(opts ...ClientOption) (*GeminiClient, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("API_KEY")
	}
	c := &GeminiClient{
		apiKey:       key,
		model:        DefaultModel,
		baseURL:      DefaultBaseURL,
		maxAttempts:  defaultMaxAttempts,
		initialDelay: defaultInitialDelay,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return c, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
	ResponseSchema   Schema `json:"responseSchema"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends prompt and returns the text of the first candidate.
// Transport errors, 429 and 5xx responses are retried with exponential
// backoff.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, schema Schema) (string, error) {
	reqBytes, err := sonic.ConfigStd.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json", ResponseSchema: schema},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/v1beta/models/" + c.model + ":generateContent"

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		body, status, err := c.post(ctx, url, reqBytes)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		if status != http.StatusOK {
			lastErr = statusError(status, body)
			if status == http.StatusTooManyRequests || status >= 500 {
				continue
			}
			return "", lastErr
		}
		return firstCandidateText(body)
	}
	return "", lastErr
}

func (c *GeminiClient) post(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func statusError(status int, body []byte) error {
	var r generateResponse
	if sonic.ConfigStd.Unmarshal(body, &r) == nil && r.Error != nil && r.Error.Message != "" {
		return fmt.Errorf("API error (status %d): %s", status, r.Error.Message)
	}
	return fmt.Errorf("API error (status %d): %s", status, string(body))
}

func firstCandidateText(body []byte) (string, error) {
	var r generateResponse
	if err := sonic.ConfigStd.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if r.Error != nil {
		return "", fmt.Errorf("API error: %s", r.Error.Message)
	}
	if len(r.Candidates) == 0 {
		return "", errors.New("empty response from API")
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("empty candidate (finish reason %q)", r.Candidates[0].FinishReason)
	}
	return text, nil
}
