// Package vision transcribes page images with an OpenAI-compatible vision model.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	goopenai "github.com/sashabaranov/go-openai"
)

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type Client struct {
	client    *goopenai.Client
	model     string
	maxTokens int
}

func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, errors.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	cc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		client:    goopenai.NewClientWithConfig(cc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// ReadPage asks the model for the text of one page image.
func (c *Client) ReadPage(ctx context.Context, png []byte, page int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []goopenai.ChatCompletionMessage{{
			Role: goopenai.ChatMessageRoleUser,
			MultiContent: []goopenai.ChatMessagePart{
				{
					Type: goopenai.ChatMessagePartTypeText,
					Text: fmt.Sprintf("Extract the text from this page (Page %d):", page),
				},
				{
					Type: goopenai.ChatMessagePartTypeImageURL,
					ImageURL: &goopenai.ChatMessageImageURL{
						URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
					},
				},
			},
		}},
	})
	if err != nil {
		return "", errors.Wrapf(err, "vision request for page %d", page)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
