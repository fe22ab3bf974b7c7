package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.reply == "" {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestEvaluate(t *testing.T) {
	m := &stubModel{reply: "Compliance Status: Fully Compliant"}
	j := NewJudgeWithModel(m, 0.2)
	out, err := j.Evaluate(context.Background(), "evaluate this")
	require.NoError(t, err)
	assert.Equal(t, "Compliance Status: Fully Compliant", out)

	require.Len(t, m.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[0].Role)
	assert.Equal(t, llms.TextContent{Text: "evaluate this"}, m.messages[0].Parts[0])
	assert.Equal(t, 0.2, m.opts.Temperature)
}

func TestEvaluateErrors(t *testing.T) {
	_, err := NewJudgeWithModel(&stubModel{err: errors.New("boom")}, 0).Evaluate(context.Background(), "p")
	assert.Error(t, err)

	_, err = NewJudgeWithModel(&stubModel{}, 0).Evaluate(context.Background(), "p")
	assert.Error(t, err)
}

func TestNewJudgeRequiresKey(t *testing.T) {
	t.Setenv("JUDGE_EMPTY_KEY", "")
	_, err := NewJudge(Config{APIKeyEnv: "JUDGE_EMPTY_KEY"})
	assert.Error(t, err)
}
