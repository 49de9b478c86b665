// Package extract calls the vision extraction service that turns a rendered
// page image into a structured fragment payload. The service is the only
// nondeterministic collaborator in the pipeline; everything downstream is
// pure. Responses arrive as JSON, frequently wrapped in markdown fences and
// occasionally malformed, so parsing carries a bounded repair step.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/eino-ext/components/model/openai"

	"reflow/fragment"
	"reflow/observability"
)

// PageExtractor produces a structured page from a rendered page image.
type PageExtractor interface {
	// ExtractPage extracts a single page with no surrounding context.
	ExtractPage(ctx context.Context, img []byte, pageNum int) (fragment.Page, error)

	// ExtractPageWithContext extracts a page carrying the previous page's
	// summary, so the service can tag fragments that continue content from
	// the page before. prevSummary may be empty for the first page.
	ExtractPageWithContext(ctx context.Context, img []byte, pageNum int, prevSummary string) (fragment.Page, error)
}

// Config holds the extraction service connection settings.
type Config struct {
	// Model names the vision-capable chat model.
	Model string

	APIKey string

	// BaseURL overrides the service endpoint for OpenAI-compatible
	// providers. Empty uses the default.
	BaseURL string

	// MaxTokens bounds the response length. Zero means DefaultMaxTokens.
	MaxTokens int

	Log observability.Logger
}

// DefaultModel is the vision model used when none is configured.
const DefaultModel = "gpt-4o"

// DefaultMaxTokens bounds the extraction response.
const DefaultMaxTokens = 4096

// Client is the eino-backed PageExtractor.
type Client struct {
	chat model.BaseChatModel
	log  observability.Logger
}

// NewClient builds a Client against an OpenAI-compatible endpoint.
// Extraction runs at temperature zero; the payload must be reproducible,
// not creative.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Log == nil {
		cfg.Log = observability.NopLogger{}
	}

	temperature := float32(0)
	mc := &openai.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: &temperature,
		MaxTokens:   &cfg.MaxTokens,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = cfg.BaseURL
	}

	chat, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return &Client{chat: chat, log: cfg.Log}, nil
}

// NewClientWithModel wraps an existing chat model. Used by tests and by
// callers that configure the model themselves.
func NewClientWithModel(chat model.BaseChatModel, log observability.Logger) *Client {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Client{chat: chat, log: log}
}

// ExtractPage implements PageExtractor.
func (c *Client) ExtractPage(ctx context.Context, img []byte, pageNum int) (fragment.Page, error) {
	return c.extract(ctx, img, pageNum, pagePrompt(pageNum, ""))
}

// ExtractPageWithContext implements PageExtractor.
func (c *Client) ExtractPageWithContext(ctx context.Context, img []byte, pageNum int, prevSummary string) (fragment.Page, error) {
	return c.extract(ctx, img, pageNum, pagePrompt(pageNum, prevSummary))
}

func (c *Client) extract(ctx context.Context, img []byte, pageNum int, prompt string) (fragment.Page, error) {
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: prompt},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:    dataURL(img),
					Detail: schema.ImageURLDetailHigh,
				},
			},
		},
	}

	resp, err := c.chat.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		return fragment.Page{}, fmt.Errorf("extract page %d: %w", pageNum, err)
	}

	page, err := ParsePage(resp.Content, pageNum)
	if err != nil {
		return fragment.Page{}, fmt.Errorf("extract page %d: %w", pageNum, err)
	}

	c.log.Info("page extracted",
		observability.Int("page", pageNum),
		observability.Int("fragments", len(page.Fragments)),
		observability.Int("continuations", countContinuations(page.Fragments)))
	return page, nil
}

func countContinuations(items []fragment.Fragment) int {
	n := 0
	for _, f := range items {
		if f.Continuation {
			n++
		}
	}
	return n
}

func dataURL(img []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
}
