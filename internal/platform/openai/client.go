package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

const providerName = "openai"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	System          string
	Messages        []Message
	MaxOutputTokens int
	Temperature     float32
	// JSON asks the model for a single JSON object.
	JSON bool
}

// Client is the embedding and text-generation surface used by the knowledge module.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
	Timeout    time.Duration
}

// Error is returned for every failed provider call. StatusCode is zero for
// transport failures.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("openai %s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("openai %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatusCode() int { return e.StatusCode }

type client struct {
	log        *logger.Logger
	api        *goopenai.Client
	model      string
	embedModel string
	metrics    *observability.Metrics
}

func NewClient(log *logger.Logger, cfg Config, metrics *observability.Metrics) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	conf := goopenai.DefaultConfig(apiKey)
	if base := normalizeBaseURL(cfg.BaseURL); base != "" {
		conf.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	conf.HTTPClient = &http.Client{Timeout: timeout}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	embed := strings.TrimSpace(cfg.EmbedModel)
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	return &client{
		log:        log.With("service", "OpenAIClient"),
		api:        goopenai.NewClientWithConfig(conf),
		model:      model,
		embedModel: embed,
		metrics:    metrics,
	}, nil
}

// normalizeBaseURL accepts both "https://host" and "https://host/v1".
func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

func (c *client) Embed(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveProvider(providerName, "embed", err, time.Since(start)) }()

	if strings.TrimSpace(text) == "" {
		return nil, &Error{Op: "embed", Err: errors.New("empty input")}
	}
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(c.embedModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, wrapErr("embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &Error{Op: "embed", Err: errors.New("no embedding data returned")}
	}
	src := resp.Data[0].Embedding
	vec = make([]float32, len(src))
	for i := range src {
		vec[i] = float32(src[i])
	}
	return vec, nil
}

func (c *client) Complete(ctx context.Context, req CompletionRequest) (out string, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveProvider(providerName, "complete", err, time.Since(start)) }()

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: s})
	}
	for _, m := range req.Messages {
		role := m.Role
		switch role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			role = RoleUser
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if len(msgs) == 0 {
		return "", &Error{Op: "complete", Err: errors.New("no messages")}
	}

	creq := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		creq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", wrapErr("complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Op: "complete", Err: errors.New("no choices returned")}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Op: "complete", Err: errors.New("empty completion")}
	}
	return text, nil
}

func wrapErr(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Op: op, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Op: op, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &Error{Op: op, Err: err}
}
