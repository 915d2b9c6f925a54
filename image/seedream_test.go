package image

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/imagegen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedreamServer(t *testing.T, got *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		_, _ = w.Write([]byte(`{"model":"m","created":1,"data":[{"b64_json":"ZHVtbXk=","size":"1024x1024"}],"usage":{"generated_images":1,"output_tokens":4096,"total_tokens":4096}}`))
	}))
}

func TestSeedreamAdapter_Generate_LegacyParams(t *testing.T) {
	var got map[string]any
	server := seedreamServer(t, &got)
	defer server.Close()

	cfg := testConfig("seedream", "doubao-seededit-3-0-i2i-250628", server.URL)
	cfg.ParamOverrides = map[string]any{"seed": 42}
	req := &ImageRequest{Prompt: "make it night", InputImage: &InputImage{B64: "ZHVtbXk=", MimeType: "image/png"}}

	res, err := NewSeedreamAdapter(Options{}).Generate(context.Background(), req, cfg)
	require.NoError(t, err)

	assert.Equal(t, "b64_json", got["response_format"])
	assert.Equal(t, "data:image/png;base64,ZHVtbXk=", got["image"])
	assert.Equal(t, float64(42), got["seed"])
	assert.Equal(t, 5.5, got["guidance_scale"])

	require.Len(t, res.Images, 1)
	assert.Equal(t, "ZHVtbXk=", res.Images[0].B64)
	assert.Contains(t, res.Metadata.Extra, "usage")
}

func TestSeedreamAdapter_Generate_V4DropsSeedAndGuidance(t *testing.T) {
	var got map[string]any
	server := seedreamServer(t, &got)
	defer server.Close()

	cfg := testConfig("seedream", "doubao-seedream-4-0-250828", server.URL)
	cfg.ParamOverrides = map[string]any{"seed": 7, "guidance_scale": 3.0}

	_, err := NewSeedreamAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"}, cfg)
	require.NoError(t, err)

	assert.NotContains(t, got, "seed")
	assert.NotContains(t, got, "guidance_scale")
	assert.NotContains(t, got, "image")
	assert.Equal(t, "2K", got["size"])
}

func TestSeedreamLegacyModelPattern(t *testing.T) {
	assert.True(t, seedreamLegacyModel.MatchString("doubao-seedream-3-0-t2i-250415"))
	assert.True(t, seedreamLegacyModel.MatchString("seedream-3.0"))
	assert.True(t, seedreamLegacyModel.MatchString("doubao-seededit-3-0-i2i-250628"))
	assert.False(t, seedreamLegacyModel.MatchString("doubao-seedream-4-0-250828"))
}

func TestSeedreamAdapter_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		prefix    string
		retryable bool
	}{
		{http.StatusUnauthorized, "Seedream authentication failed", false},
		{http.StatusTooManyRequests, "Seedream rate limit exceeded", true},
		{http.StatusBadRequest, "Seedream rejected the request", false},
		{http.StatusServiceUnavailable, "Seedream service error (503)", true},
		{http.StatusForbidden, "Seedream API error (403)", false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"code":"X","message":"upstream says no"}}`))
			}))
			defer server.Close()

			_, err := NewSeedreamAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"},
				testConfig("seedream", "doubao-seedream-4-0-250828", server.URL))
			require.Error(t, err)

			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, types.ErrVendorAPI, e.Code)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Contains(t, e.Message, tt.prefix)
			assert.Contains(t, e.Message, "upstream says no")
			assert.Equal(t, tt.retryable, e.Retryable)
		})
	}
}
