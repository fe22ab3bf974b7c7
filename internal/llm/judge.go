// Package llm adapts a langchaingo chat model to the compliance judge.
package llm

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Judge sends evaluation prompts to a chat model.
type Judge struct {
	model       llms.Model
	temperature float64
}

func NewJudge(cfg Config) (*Judge, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, errors.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	opts := []openai.Option{
		openai.WithToken(key),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create chat model")
	}
	return NewJudgeWithModel(model, cfg.Temperature), nil
}

func NewJudgeWithModel(model llms.Model, temperature float64) *Judge {
	return &Judge{model: model, temperature: temperature}
}

// Evaluate returns the model's reply to prompt.
func (j *Judge) Evaluate(ctx context.Context, prompt string) (string, error) {
	resp, err := j.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(j.temperature),
	)
	if err != nil {
		return "", errors.Wrap(err, "judge request")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("judge returned no choices")
	}
	return resp.Choices[0].Content, nil
}
