package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/extract"
)

var _ extract.PageReader = (*Client)(nil)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
}

func TestReadPage(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Policy text  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()
	t.Setenv("VISION_TEST_KEY", "sk-test")

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "VISION_TEST_KEY", Model: "gpt-4o-mini", MaxTokens: 1000})
	require.NoError(t, err)

	text, err := c.ReadPage(context.Background(), []byte{0x89, 'P', 'N', 'G'}, 3)
	require.NoError(t, err)
	assert.Equal(t, "Policy text", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "Extract the text from this page (Page 3):", got.Messages[0].Content[0].Text)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,iVBORw"))
}

func TestReadPageNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()
	t.Setenv("VISION_TEST_KEY", "sk-test")

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "VISION_TEST_KEY"})
	require.NoError(t, err)
	_, err = c.ReadPage(context.Background(), []byte("png"), 1)
	assert.Error(t, err)
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("VISION_EMPTY_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "VISION_EMPTY_KEY"})
	assert.Error(t, err)
}
