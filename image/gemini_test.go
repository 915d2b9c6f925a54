package image

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/imagegen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiAdapter_Generate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash-image:generateContent"), r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"text": "A cat wearing a hat"},
					{"inlineData": {"mimeType": "image/png", "data": "ZHVtbXk="}}
				]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 5, "totalTokenCount": 8}
		}`))
	}))
	defer server.Close()

	cfg := testConfig("gemini", "gemini-2.5-flash-image", server.URL)
	cfg.ParamOverrides = map[string]any{"temperature": 0.4}
	req := &ImageRequest{Prompt: "a cat", InputImage: &InputImage{B64: "ZHVtbXk=", MimeType: "image/png"}}

	res, err := NewGeminiAdapter(Options{}).Generate(context.Background(), req, cfg)
	require.NoError(t, err)

	require.Len(t, res.Images, 1)
	assert.Equal(t, "ZHVtbXk=", res.Images[0].B64)
	assert.Equal(t, "image/png", res.Images[0].MimeType)
	assert.Equal(t, "A cat wearing a hat", res.Text)
	assert.Equal(t, "STOP", res.Metadata.Extra["finishReason"])
	assert.Equal(t, "gemini", res.Metadata.ProviderID)

	contents, ok := body["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	assert.Len(t, parts, 2)
}

func TestGeminiAdapter_Generate_NoImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"I can't help with that"}]}}]}`))
	}))
	defer server.Close()

	_, err := NewGeminiAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"},
		testConfig("gemini", "gemini-2.5-flash-image", server.URL))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrVendorAPI))
	assert.Contains(t, err.Error(), "I can't help with that")
}

func TestGeminiAdapter_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	_, err := NewGeminiAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"},
		testConfig("gemini", "gemini-2.5-flash-image", server.URL))
	require.Error(t, err)

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrVendorAPI, e.Code)
	assert.Equal(t, http.StatusBadRequest, e.HTTPStatus)
	assert.Contains(t, e.Message, "API key not valid")
}

func TestBuildGeminiContents(t *testing.T) {
	contents, err := buildGeminiContents(&ImageRequest{Prompt: "hello"})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 1)
	assert.Equal(t, "hello", contents[0].Parts[0].Text)

	_, err = buildGeminiContents(&ImageRequest{Prompt: "x", InputImage: &InputImage{B64: "%%%", MimeType: "image/png"}})
	assert.True(t, types.IsCode(err, types.ErrValidation))
}
