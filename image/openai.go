package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	"github.com/BaSui01/imagegen/types"
	"go.uber.org/zap"
)

const (
	OpenAIProviderID     = "openai"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
)

// openAIReservedKeys 由适配器自己写入的字段，不允许参数覆盖；n / batch_size 强制为 1
var openAIReservedKeys = map[string]struct{}{
	"model":           {},
	"prompt":          {},
	"n":               {},
	"batch_size":      {},
	"image":           {},
	"response_format": {},
}

// OpenAIAdapter使用OpenAI Images API执行图像生成.
type OpenAIAdapter struct {
	adapterBase
}

// NewOpenAIAdapter 创建 OpenAI 图像适配器.
func NewOpenAIAdapter(opts Options) *OpenAIAdapter {
	p := Provider{
		ID:             OpenAIProviderID,
		Name:           "OpenAI",
		RequiresAPIKey: true,
		DefaultBaseURL: openAIDefaultBaseURL,
		ConnectionSchema: ConnectionSchema{
			Required:   []string{"apiKey"},
			Optional:   []string{"baseURL", "organization"},
			FieldTypes: map[string]FieldType{"apiKey": FieldString, "baseURL": FieldString, "organization": FieldString},
		},
	}
	return &OpenAIAdapter{adapterBase: newAdapterBase(p, openAIModels(), opts)}
}

func openAIModels() []Model {
	return []Model{
		{
			ID:           "gpt-image-1",
			Name:         "GPT Image 1",
			ProviderID:   OpenAIProviderID,
			Capabilities: Capabilities{Text2Image: true, Image2Image: true, MultiImage: true},
			Parameters: []ParamDefinition{
				{Name: "size", Type: "string", Default: "1024x1024", Allowed: []any{"1024x1024", "1536x1024", "1024x1536", "auto"}},
				{Name: "quality", Type: "string", Default: "auto", Allowed: []any{"low", "medium", "high", "auto"}},
				{Name: "background", Type: "string", Allowed: []any{"transparent", "opaque", "auto"}},
				{Name: "output_format", Type: "string", Allowed: []any{"png", "jpeg", "webp"}},
			},
			DefaultParams: map[string]any{"size": "1024x1024"},
		},
		{
			ID:           "dall-e-3",
			Name:         "DALL·E 3",
			ProviderID:   OpenAIProviderID,
			Capabilities: Capabilities{Text2Image: true},
			Parameters: []ParamDefinition{
				{Name: "size", Type: "string", Default: "1024x1024", Allowed: []any{"1024x1024", "1792x1024", "1024x1792"}},
				{Name: "quality", Type: "string", Default: "standard", Allowed: []any{"standard", "hd"}},
				{Name: "style", Type: "string", Default: "vivid", Allowed: []any{"vivid", "natural"}},
			},
			DefaultParams: map[string]any{"size": "1024x1024"},
		},
		{
			ID:           "dall-e-2",
			Name:         "DALL·E 2",
			ProviderID:   OpenAIProviderID,
			Capabilities: Capabilities{Text2Image: true, Image2Image: true},
			Parameters: []ParamDefinition{
				{Name: "size", Type: "string", Default: "1024x1024", Allowed: []any{"256x256", "512x512", "1024x1024"}},
			},
			DefaultParams: map[string]any{"size": "1024x1024"},
		},
	}
}

func normalizeOpenAIBaseURL(base string) string { return ensureVersionSuffix(base, "/v1") }

// Generate 从文本提示或输入图生成图像.
func (a *OpenAIAdapter) Generate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	return runGenerate(ctx, a, req, cfg, a.doGenerate)
}

type openAIImageRequest struct {
	Model          string
	Prompt         string
	ResponseFormat string
	Extra          map[string]any
}

// MarshalJSON 展平参数覆盖，保留字段始终由适配器决定.
func (r openAIImageRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["model"] = r.Model
	out["prompt"] = r.Prompt
	out["n"] = 1
	if r.ResponseFormat != "" {
		out["response_format"] = r.ResponseFormat
	}
	return json.Marshal(out)
}

type openAIImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
	Usage *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
		TotalTokens  int64 `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (a *OpenAIAdapter) doGenerate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	base := ResolveBaseURL(cfg, a.provider, normalizeOpenAIBaseURL)
	params := effectiveParams(ModelFor(a, cfg.ModelID), cfg, req)
	extra := stripReserved(params)

	body := openAIImageRequest{
		Model:          cfg.ModelID,
		Prompt:         req.Prompt,
		ResponseFormat: openAIResponseFormat(cfg.ModelID),
		Extra:          extra,
	}

	var resp openAIImageResponse
	if req.InputImage == nil {
		url := ResolveEndpointURL(base, "/images/generations")
		if err := a.postJSON(ctx, url, a.headers(cfg), body, &resp, nil); err != nil {
			return nil, err
		}
	} else {
		url := ResolveEndpointURL(base, "/images/edits")
		if err := a.postEdit(ctx, url, cfg, body, req.InputImage, &resp); err != nil {
			return nil, err
		}
	}
	return a.toResult(resp, extra)
}

func (a *OpenAIAdapter) headers(cfg *ModelConfig) map[string]string {
	h := bearer(cfg.APIKey())
	if org := cfg.StringField("organization"); org != "" {
		h["OpenAI-Organization"] = org
	}
	return h
}

// gpt-image 系列总是返回 b64_json，且不接受 response_format 参数
func openAIResponseFormat(modelID string) string {
	if strings.HasPrefix(strings.ToLower(modelID), "gpt-image") {
		return ""
	}
	return "b64_json"
}

func stripReserved(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, reserved := openAIReservedKeys[k]; reserved || v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// postEdit 以 multipart 表单调用 /images/edits.
func (a *OpenAIAdapter) postEdit(ctx context.Context, url string, cfg *ModelConfig, body openAIImageRequest, img *InputImage, out *openAIImageResponse) error {
	mime, payload := SplitDataURL(img.B64)
	if mime == "" {
		mime = strings.ToLower(img.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return types.NewValidationError("input image is not valid base64").WithCause(err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := "image.png"
	if mime == "image/jpeg" {
		filename = "image.jpg"
	}
	part, err := createImagePart(writer, filename, mime)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}

	_ = writer.WriteField("model", body.Model)
	_ = writer.WriteField("prompt", body.Prompt)
	_ = writer.WriteField("n", "1")
	if body.ResponseFormat != "" {
		_ = writer.WriteField("response_format", body.ResponseFormat)
	}
	keys := make([]string, 0, len(body.Extra))
	for k := range body.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = writer.WriteField(k, formValue(body.Extra[k]))
	}
	if err := writer.Close(); err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range a.headers(cfg) {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	a.logger.Debug("calling vendor", requestFields(ctx, zap.String("url", url), zap.Int("image_bytes", len(data)))...)
	resp, respBody, err := a.doRequest(httpReq)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return a.vendorError(resp.StatusCode, respBody)
	}
	return a.decode(respBody, out)
}

func formValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func (a *OpenAIAdapter) toResult(resp openAIImageResponse, params map[string]any) (*ImageResult, error) {
	if len(resp.Data) == 0 {
		return nil, types.NewError(types.ErrVendorAPI, "OpenAI returned no images").WithProvider(a.provider.ID)
	}
	mime := "image/png"
	if f, ok := paramString(params, "output_format"); ok {
		mime = "image/" + strings.ToLower(f)
	}

	result := &ImageResult{}
	var revised []string
	for _, d := range resp.Data {
		img := GeneratedImage{B64: strings.TrimSpace(d.B64JSON), URL: strings.TrimSpace(d.URL)}
		if img.B64 != "" {
			img.MimeType = mime
		}
		result.Images = append(result.Images, img)
		if rp := strings.TrimSpace(d.RevisedPrompt); rp != "" {
			revised = append(revised, rp)
		}
	}
	if len(revised) > 0 {
		result.Text = strings.Join(revised, "\n")
		result.setExtra("revisedPrompt", revised[0])
	}
	if resp.Usage != nil {
		result.setExtra("usage", map[string]any{
			"inputTokens":  resp.Usage.InputTokens,
			"outputTokens": resp.Usage.OutputTokens,
			"totalTokens":  resp.Usage.TotalTokens,
		})
	}
	return result, nil
}

// createImagePart 与 CreateFormFile 相同，但带上真实的图片 Content-Type
func createImagePart(w *multipart.Writer, filename, mime string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
	h.Set("Content-Type", mime)
	return w.CreatePart(h)
}
