package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/imagegen/types"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	GeminiProviderID     = "gemini"
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// GeminiAdapter implements image generation using Google Gemini's native multimodal capabilities.
type GeminiAdapter struct {
	adapterBase
}

// NewGeminiAdapter creates a new Gemini image adapter.
func NewGeminiAdapter(opts Options) *GeminiAdapter {
	p := Provider{
		ID:             GeminiProviderID,
		Name:           "Gemini",
		RequiresAPIKey: true,
		DefaultBaseURL: geminiDefaultBaseURL,
		ConnectionSchema: ConnectionSchema{
			Required:   []string{"apiKey"},
			Optional:   []string{"baseURL"},
			FieldTypes: map[string]FieldType{"apiKey": FieldString, "baseURL": FieldString},
		},
	}
	return &GeminiAdapter{adapterBase: newAdapterBase(p, geminiModels(), opts)}
}

func geminiParams() []ParamDefinition {
	return []ParamDefinition{
		{Name: "temperature", Type: "number", Min: ptrFloat(0), Max: ptrFloat(2), Description: "Sampling temperature"},
		{Name: "topP", Type: "number", Min: ptrFloat(0), Max: ptrFloat(1)},
		{Name: "seed", Type: "integer"},
	}
}

func geminiModels() []Model {
	caps := Capabilities{Text2Image: true, Image2Image: true, MultiImage: true}
	return []Model{
		{
			ID:           "gemini-2.5-flash-image",
			Name:         "Gemini 2.5 Flash Image",
			Description:  "Nano Banana: fast text-to-image and image editing",
			ProviderID:   GeminiProviderID,
			Capabilities: caps,
			Parameters:   geminiParams(),
		},
		{
			ID:           "gemini-2.5-flash-image-preview",
			Name:         "Gemini 2.5 Flash Image (Preview)",
			ProviderID:   GeminiProviderID,
			Capabilities: caps,
			Parameters:   geminiParams(),
		},
		{
			ID:           "gemini-3-pro-image-preview",
			Name:         "Gemini 3 Pro Image (Preview)",
			Description:  "Higher fidelity generation with reasoning",
			ProviderID:   GeminiProviderID,
			Capabilities: caps,
			Parameters:   geminiParams(),
		},
	}
}

func (a *GeminiAdapter) BuildDefaultModel(modelID string) Model {
	m := a.adapterBase.BuildDefaultModel(modelID)
	m.Parameters = geminiParams()
	return m
}

// Generate creates images using Gemini's native image generation.
func (a *GeminiAdapter) Generate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	return runGenerate(ctx, a, req, cfg, a.doGenerate)
}

// normalizeGeminiBaseURL SDK 会自行追加 API 版本，这里去掉用户可能带上的 /v1beta.
func normalizeGeminiBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	base = strings.TrimSuffix(base, "/v1beta")
	base = strings.TrimSuffix(base, "/v1")
	return base + "/"
}

func (a *GeminiAdapter) newClient(ctx context.Context, cfg *ModelConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey(),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.client,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: ResolveBaseURL(cfg, a.provider, normalizeGeminiBaseURL),
		},
	})
}

func (a *GeminiAdapter) doGenerate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	client, err := a.newClient(ctx, cfg)
	if err != nil {
		return nil, types.NewConfigurationError("failed to create Gemini client").WithCause(err).WithProvider(a.provider.ID)
	}

	contents, err := buildGeminiContents(req)
	if err != nil {
		return nil, err
	}
	params := effectiveParams(ModelFor(a, cfg.ModelID), cfg, req)
	genCfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if v, ok := paramFloat(params, "temperature"); ok {
		genCfg.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := paramFloat(params, "topP"); ok {
		genCfg.TopP = genai.Ptr(float32(v))
	}
	if v, ok := paramInt(params, "seed"); ok {
		genCfg.Seed = genai.Ptr(int32(v))
	}

	a.logger.Debug("calling gemini generateContent", requestFields(ctx,
		zap.String("model", cfg.ModelID),
		zap.Bool("has_input_image", req.InputImage != nil),
	)...)
	resp, err := client.Models.GenerateContent(ctx, cfg.ModelID, contents, genCfg)
	if err != nil {
		return nil, a.mapGeminiError(err)
	}
	return a.parseResponse(resp)
}

// buildGeminiContents 纯文本请求直接用文本内容；带输入图时组装 [text, inlineData].
func buildGeminiContents(req *ImageRequest) ([]*genai.Content, error) {
	if req.InputImage == nil {
		return genai.Text(req.Prompt), nil
	}
	mime, payload := SplitDataURL(req.InputImage.B64)
	if mime == "" {
		mime = strings.ToLower(req.InputImage.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, types.NewValidationError("input image is not valid base64").WithCause(err)
	}
	parts := []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromBytes(data, mime),
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func (a *GeminiAdapter) parseResponse(resp *genai.GenerateContentResponse) (*ImageResult, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, types.NewError(types.ErrVendorAPI, "Gemini returned no candidates").WithProvider(a.provider.ID)
	}
	candidate := resp.Candidates[0]

	result := &ImageResult{}
	var texts []string
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			result.Images = append(result.Images, GeneratedImage{
				B64:      base64.StdEncoding.EncodeToString(part.InlineData.Data),
				MimeType: mime,
			})
			continue
		}
		if t := strings.TrimSpace(part.Text); t != "" && !part.Thought {
			texts = append(texts, t)
		}
	}
	if len(result.Images) == 0 {
		msg := "Gemini returned no image"
		if len(texts) > 0 {
			msg = fmt.Sprintf("Gemini returned no image: %s", strings.Join(texts, " "))
		}
		return nil, types.NewError(types.ErrVendorAPI, msg).WithProvider(a.provider.ID)
	}
	result.Text = strings.Join(texts, "\n")

	if candidate.FinishReason != "" {
		result.setExtra("finishReason", string(candidate.FinishReason))
	}
	if u := resp.UsageMetadata; u != nil {
		result.setExtra("usage", map[string]any{
			"promptTokens":     u.PromptTokenCount,
			"candidatesTokens": u.CandidatesTokenCount,
			"totalTokens":      u.TotalTokenCount,
		})
	}
	return result, nil
}

// mapGeminiError SDK 的 APIError 转为 VendorAPIError，其余视为传输失败.
func (a *GeminiAdapter) mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return types.NewVendorAPIError(a.provider.ID, apiErr.Code,
			fmt.Sprintf("Gemini API error (%d): %s", apiErr.Code, apiErr.Message)).WithCause(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return types.NewVendorAPIError(a.provider.ID, apiErrPtr.Code,
			fmt.Sprintf("Gemini API error (%d): %s", apiErrPtr.Code, apiErrPtr.Message)).WithCause(err)
	}
	return wrapTransportError(a.provider.ID, a.provider.Name, err)
}
