package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artist-crawler/internal/oracle"
)

func TestCompleteParsesTextAndUsage(t *testing.T) {
	t.Parallel()

	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "[]"}]}}],
			"usageMetadata": {"promptTokenCount": 77, "candidatesTokenCount": 2},
			"modelVersion": "gemini-test"
		}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), oracle.Request{
		System:    "extract artists",
		User:      "URL: https://inkhouse.example",
		MaxTokens: 1500,
	})
	require.NoError(t, err)
	assert.Equal(t, oracle.Response{Text: "[]", Model: "gemini-test", InputTokens: 77, OutputTokens: 2}, resp)

	assert.True(t, strings.HasSuffix(path, "models/gemini-test:generateContent"), path)
	require.Contains(t, body, "systemInstruction")
	gen, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1500, gen["maxOutputTokens"])
}

func TestCompleteSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), oracle.Request{User: "hi"})
	require.ErrorContains(t, err, "gemini generate")
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
