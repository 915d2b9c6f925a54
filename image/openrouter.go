package image

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/imagegen/types"
)

const (
	OpenRouterProviderID     = "openrouter"
	openRouterDefaultBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterAdapter 通过 chat/completions + modalities 生成图像.
type OpenRouterAdapter struct {
	adapterBase
}

// NewOpenRouterAdapter 创建 OpenRouter 图像适配器.
func NewOpenRouterAdapter(opts Options) *OpenRouterAdapter {
	p := Provider{
		ID:             OpenRouterProviderID,
		Name:           "OpenRouter",
		RequiresAPIKey: true,
		DefaultBaseURL: openRouterDefaultBaseURL,
		ConnectionSchema: ConnectionSchema{
			Required: []string{"apiKey"},
			Optional: []string{"baseURL", "siteUrl", "appName"},
			FieldTypes: map[string]FieldType{
				"apiKey": FieldString, "baseURL": FieldString, "siteUrl": FieldString, "appName": FieldString,
			},
		},
	}
	return &OpenRouterAdapter{adapterBase: newAdapterBase(p, openRouterModels(), opts)}
}

func openRouterModels() []Model {
	caps := Capabilities{Text2Image: true, Image2Image: true, MultiImage: true}
	params := []ParamDefinition{
		{Name: "temperature", Type: "number", Min: ptrFloat(0), Max: ptrFloat(2)},
		{Name: "seed", Type: "integer"},
	}
	return []Model{
		{ID: "google/gemini-2.5-flash-image", Name: "Gemini 2.5 Flash Image", ProviderID: OpenRouterProviderID, Capabilities: caps, Parameters: params},
		{ID: "google/gemini-2.5-flash-image-preview", Name: "Gemini 2.5 Flash Image (Preview)", ProviderID: OpenRouterProviderID, Capabilities: caps, Parameters: params},
		{ID: "google/gemini-3-pro-image-preview", Name: "Gemini 3 Pro Image (Preview)", ProviderID: OpenRouterProviderID, Capabilities: caps, Parameters: params},
	}
}

func normalizeOpenRouterBaseURL(base string) string { return ensureVersionSuffix(base, "/api/v1") }

// Generate 以聊天补全的形式请求图像输出.
func (a *OpenRouterAdapter) Generate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	return runGenerate(ctx, a, req, cfg, a.doGenerate)
}

type openRouterContentPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string 或 []openRouterContentPart
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Modalities  []string            `json:"modalities"`
	Temperature *float64            `json:"temperature,omitempty"`
	Seed        *int64              `json:"seed,omitempty"`
	Stream      bool                `json:"stream"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
			Images  []struct {
				Type     string             `json:"type"`
				ImageURL openRouterImageURL `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (a *OpenRouterAdapter) doGenerate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	params := effectiveParams(ModelFor(a, cfg.ModelID), cfg, req)

	body := openRouterRequest{
		Model:      cfg.ModelID,
		Messages:   []openRouterMessage{buildOpenRouterMessage(req)},
		Modalities: []string{"image", "text"},
	}
	if v, ok := paramFloat(params, "temperature"); ok {
		body.Temperature = &v
	}
	if v, ok := paramInt(params, "seed"); ok {
		body.Seed = &v
	}

	headers := bearer(cfg.APIKey())
	if site := cfg.StringField("siteUrl"); site != "" {
		headers["HTTP-Referer"] = site
	}
	if app := cfg.StringField("appName"); app != "" {
		headers["X-Title"] = app
	}

	url := ResolveEndpointURL(ResolveBaseURL(cfg, a.provider, normalizeOpenRouterBaseURL), "/chat/completions")
	var resp openRouterResponse
	if err := a.postJSON(ctx, url, headers, body, &resp, nil); err != nil {
		return nil, err
	}
	return a.toResult(resp)
}

// buildOpenRouterMessage 输入图可以是远程 URL，否则构造 data URL.
func buildOpenRouterMessage(req *ImageRequest) openRouterMessage {
	if req.InputImage == nil {
		return openRouterMessage{Role: "user", Content: req.Prompt}
	}
	url := strings.TrimSpace(req.InputImage.B64)
	if !isRemoteURL(url) {
		url = ToDataURL(req.InputImage)
	}
	return openRouterMessage{
		Role: "user",
		Content: []openRouterContentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &openRouterImageURL{URL: url}},
		},
	}
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (a *OpenRouterAdapter) toResult(resp openRouterResponse) (*ImageResult, error) {
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrVendorAPI, "OpenRouter returned no choices").WithProvider(a.provider.ID)
	}
	choice := resp.Choices[0]

	result := &ImageResult{Text: strings.TrimSpace(decodeChatContent(choice.Message.Content))}
	for _, img := range choice.Message.Images {
		raw := strings.TrimSpace(img.ImageURL.URL)
		if raw == "" {
			continue
		}
		if isRemoteURL(raw) {
			result.Images = append(result.Images, GeneratedImage{URL: raw})
			continue
		}
		mime, payload := SplitDataURL(raw)
		if mime == "" {
			mime = "image/png"
		}
		result.Images = append(result.Images, GeneratedImage{B64: payload, MimeType: mime, URL: raw})
	}
	if len(result.Images) == 0 {
		msg := "OpenRouter returned no image"
		if result.Text != "" {
			msg += ": " + result.Text
		}
		return nil, types.NewError(types.ErrVendorAPI, msg).WithProvider(a.provider.ID)
	}

	if choice.FinishReason != "" {
		result.setExtra("finishReason", choice.FinishReason)
	}
	if resp.Usage != nil {
		result.setExtra("usage", map[string]any{
			"promptTokens":     resp.Usage.PromptTokens,
			"completionTokens": resp.Usage.CompletionTokens,
			"totalTokens":      resp.Usage.TotalTokens,
		})
	}
	return result, nil
}

// decodeChatContent content 可能是字符串，也可能是分段数组
func decodeChatContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts []openRouterContentPart
	if json.Unmarshal(raw, &parts) == nil {
		var texts []string
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}
