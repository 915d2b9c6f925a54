package image

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/imagegen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiliconFlowImageSize(t *testing.T) {
	assert.Equal(t, "1024x1024", SiliconFlowImageSize("1024x1024"))
	assert.Equal(t, "1664x928", SiliconFlowImageSize("16:9"))
	assert.Equal(t, "768x1024", SiliconFlowImageSize(" 3:4 "))
	assert.Equal(t, "1024x1024", SiliconFlowImageSize("4096x4096"))
	assert.Equal(t, "1024x1024", SiliconFlowImageSize(""))
}

func TestSiliconFlowAdapter_Generate_Kolors(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"images":[{"url":"https://cdn.siliconflow.cn/out.png"}],"timings":{"inference":1.5},"seed":123}`))
	}))
	defer server.Close()

	cfg := testConfig("siliconflow", "Kwai-Kolors/Kolors", server.URL)
	cfg.ParamOverrides = map[string]any{
		"image_size":      "9:16",
		"guidance_scale":  6.0,
		"negative_prompt": "blurry",
		"cfg":             3.0,
	}

	res, err := NewSiliconFlowAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "a fox"}, cfg)
	require.NoError(t, err)

	assert.Equal(t, "720x1280", got["image_size"])
	assert.Equal(t, float64(1), got["batch_size"])
	assert.Equal(t, 6.0, got["guidance_scale"])
	assert.Equal(t, "blurry", got["negative_prompt"])
	assert.NotContains(t, got, "cfg")

	require.Len(t, res.Images, 1)
	assert.Equal(t, "https://cdn.siliconflow.cn/out.png", res.Images[0].URL)
	assert.Equal(t, int64(123), res.Metadata.Extra["seed"])
}

func TestSiliconFlowAdapter_Generate_QwenUsesCFG(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"images":[{"url":"https://cdn/x.png"}]}`))
	}))
	defer server.Close()

	cfg := testConfig("siliconflow", "Qwen/Qwen-Image", server.URL)
	cfg.ParamOverrides = map[string]any{"cfg": 5.0, "guidance_scale": 9.0, "image_size": "weird"}

	_, err := NewSiliconFlowAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "x"}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 5.0, got["cfg"])
	assert.NotContains(t, got, "guidance_scale")
	assert.Equal(t, "1024x1024", got["image_size"])
}

func TestSiliconFlowAdapter_ListModels_Union(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "image", r.URL.Query().Get("type"))
		switch r.URL.Query().Get("sub_type") {
		case "text-to-image":
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"Kwai-Kolors/Kolors"},{"id":"black-forest-labs/FLUX.1-schnell"}]}`))
		case "image-to-image":
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"Kwai-Kolors/Kolors"},{"id":"Qwen/Qwen-Image-Edit"}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	models, err := NewSiliconFlowAdapter(Options{}).ListModels(context.Background(), testConfig("siliconflow", "Kwai-Kolors/Kolors", server.URL))
	require.NoError(t, err)
	require.Len(t, models, 3)

	byID := make(map[string]Model)
	for _, m := range models {
		byID[m.ID] = m
	}
	assert.Equal(t, Capabilities{Text2Image: true, Image2Image: true}, byID["Kwai-Kolors/Kolors"].Capabilities)
	assert.Equal(t, Capabilities{Text2Image: true}, byID["black-forest-labs/FLUX.1-schnell"].Capabilities)
	assert.Equal(t, Capabilities{Image2Image: true}, byID["Qwen/Qwen-Image-Edit"].Capabilities)
	assert.Equal(t, "Kolors", byID["Kwai-Kolors/Kolors"].Name)
}

func TestSiliconFlowAdapter_ListModels_FallsBackToCatalog(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := NewSiliconFlowAdapter(Options{})
	models, err := a.ListModels(context.Background(), testConfig("siliconflow", "Kwai-Kolors/Kolors", server.URL))
	require.NoError(t, err)
	assert.Equal(t, a.Models(), models)
	assert.Positive(t, calls.Load())

	// 无 apiKey 时不发请求
	before := calls.Load()
	cfg := testConfig("siliconflow", "Kwai-Kolors/Kolors", server.URL)
	delete(cfg.ConnectionConfig, "apiKey")
	models, err = a.ListModels(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Models(), models)
	assert.Equal(t, before, calls.Load())
}

func TestSiliconFlowAdapter_Generate_TransportErrorCarriesProviderID(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	_, err := NewSiliconFlowAdapter(Options{}).Generate(context.Background(), &ImageRequest{Prompt: "a fox"},
		testConfig("siliconflow", "Kwai-Kolors/Kolors", baseURL))
	require.Error(t, err)

	typed, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrNetwork, typed.Code)
	assert.Equal(t, SiliconFlowProviderID, typed.Provider)
	assert.Contains(t, typed.Message, "SiliconFlow")
}
