package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestChatClient_CompleteSendsExpectedRequest(t *testing.T) {
	var got chatRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"strategy\":\"x\"}"}}]}`))
	})

	client := NewChatClient(ChatConfig{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "llama-3.1-8b-instant", Temperature: 1})

	content, err := client.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "sys",
		UserPrompt:   "user",
		JSONMode:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"strategy":"x"}`, content)

	assert.Equal(t, "llama-3.1-8b-instant", got.Model)
	assert.Equal(t, 1.0, got.Temperature)
	assert.False(t, got.Stream)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
}

func TestChatClient_RequestOverridesModelAndTemperature(t *testing.T) {
	var got chatRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	client := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := client.Complete(context.Background(), CompletionRequest{Model: "other", Temperature: 0.4})
	require.NoError(t, err)

	assert.Equal(t, "other", got.Model)
	assert.Equal(t, 0.4, got.Temperature)
	assert.Nil(t, got.ResponseFormat)
}

func TestChatClient_NonOKStatus(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"overloaded"}`))
	})

	client := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}

func TestChatClient_NoChoicesReturnsEmptyObject(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	client := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "k"})
	content, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "{}", content)
}

func TestChatClient_UndecodableBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	})

	client := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestChatClient_ServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewChatClient(ChatConfig{BaseURL: url, APIKey: "k"})
	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.Error(t, err)
}

func TestChatClient_RateLimiterHonoursCancelledContext(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	client := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "k", RateRPS: 0.001, RateBurst: 1})

	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Complete(ctx, CompletionRequest{UserPrompt: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestNewChatClient_Defaults(t *testing.T) {
	client := NewChatClient(ChatConfig{APIKey: "k"})
	assert.Equal(t, defaultModel, client.Model())
	assert.Equal(t, defaultBaseURL, client.config.BaseURL)
	assert.Equal(t, defaultTemperature, client.config.Temperature)
	assert.Nil(t, client.limiter)
}
