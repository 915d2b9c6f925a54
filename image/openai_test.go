package image

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/imagegen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIAdapter_Generate_TextToImage(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"ZHVtbXk=","revised_prompt":"a fluffy cat"}],"usage":{"input_tokens":5,"output_tokens":10,"total_tokens":15}}`))
	}))
	defer server.Close()

	a := NewOpenAIAdapter(Options{})
	cfg := testConfig("openai", "dall-e-3", server.URL)
	cfg.ParamOverrides = map[string]any{"quality": "hd", "n": 4, "batch_size": 3}

	res, err := a.Generate(context.Background(), &ImageRequest{Prompt: "a cat"}, cfg)
	require.NoError(t, err)

	assert.Equal(t, "dall-e-3", got["model"])
	assert.Equal(t, "a cat", got["prompt"])
	assert.Equal(t, float64(1), got["n"])
	assert.Equal(t, "b64_json", got["response_format"])
	assert.Equal(t, "hd", got["quality"])
	assert.NotContains(t, got, "batch_size")

	require.Len(t, res.Images, 1)
	assert.Equal(t, "ZHVtbXk=", res.Images[0].B64)
	assert.Equal(t, "image/png", res.Images[0].MimeType)
	assert.Equal(t, "a fluffy cat", res.Text)
	assert.Equal(t, "openai", res.Metadata.ProviderID)
	assert.Equal(t, "dall-e-3", res.Metadata.ModelID)
	assert.Equal(t, "cfg-openai", res.Metadata.ConfigID)
	assert.Contains(t, res.Metadata.Extra, "usage")
}

func TestOpenAIAdapter_Generate_GPTImageOmitsResponseFormat(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"b64_json":"ZHVtbXk="}]}`))
	}))
	defer server.Close()

	cfg := testConfig("openai", "gpt-image-1", server.URL)
	cfg.ParamOverrides = map[string]any{"output_format": "webp"}
	res, err := NewOpenAIAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"}, cfg)
	require.NoError(t, err)

	assert.NotContains(t, got, "response_format")
	assert.Equal(t, "1024x1024", got["size"])
	assert.Equal(t, "image/webp", res.Images[0].MimeType)
}

func TestOpenAIAdapter_Generate_EditMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/edits", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "gpt-image-1", r.FormValue("model"))
		assert.Equal(t, "make it blue", r.FormValue("prompt"))
		assert.Equal(t, "1", r.FormValue("n"))
		assert.Empty(t, r.MultipartForm.Value["batch_size"])

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "dummy", string(data))

		_, _ = w.Write([]byte(`{"data":[{"b64_json":"ZHVtbXk="}]}`))
	}))
	defer server.Close()

	cfg := testConfig("openai", "gpt-image-1", server.URL)
	cfg.ParamOverrides = map[string]any{"batch_size": 2}
	req := &ImageRequest{
		Prompt:     "make it blue",
		InputImage: &InputImage{B64: "ZHVtbXk=", MimeType: "image/jpeg"},
	}
	res, err := NewOpenAIAdapter(Options{}).Generate(context.Background(), req, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Images, 1)
}

func TestOpenAIAdapter_Generate_VendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Your request was rejected","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAIAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"}, testConfig("openai", "dall-e-3", server.URL))
	require.Error(t, err)

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrVendorAPI, e.Code)
	assert.Equal(t, http.StatusBadRequest, e.HTTPStatus)
	assert.Contains(t, e.Message, "Your request was rejected")
	assert.False(t, e.Retryable)
}

func TestOpenAIAdapter_Generate_MissingAPIKey(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	cfg := testConfig("openai", "dall-e-3", server.URL)
	delete(cfg.ConnectionConfig, "apiKey")

	_, err := NewOpenAIAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"}, cfg)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
	assert.False(t, called)
}

func TestOpenAIAdapter_Generate_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewOpenAIAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"}, testConfig("openai", "dall-e-3", url))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNetwork))
	assert.Contains(t, err.Error(), "OpenAI request failed")
}
