package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/BaSui01/imagegen/types"
	"go.uber.org/zap"
)

const (
	siliconFlowSubTypeText2Image  = "text-to-image"
	siliconFlowSubTypeImage2Image = "image-to-image"
)

// SiliconFlowClient 是 SiliconFlow REST 接口的薄封装，不做参数策略.
type SiliconFlowClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewSiliconFlowClient 创建客户端；baseURL 为空时使用官方地址.
func NewSiliconFlowClient(apiKey, baseURL string, opts Options) *SiliconFlowClient {
	if baseURL == "" {
		baseURL = siliconFlowDefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiliconFlowClient{
		apiKey:  apiKey,
		baseURL: normalizeSiliconFlowBaseURL(baseURL),
		http:    client,
		logger:  logger.With(zap.String("component", "siliconflow_client")),
	}
}

// SiliconFlowGenerateRequest /images/generations 请求体
type SiliconFlowGenerateRequest struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt,omitempty"`
	ImageSize         string   `json:"image_size,omitempty"`
	BatchSize         int      `json:"batch_size,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`
	NumInferenceSteps *int64   `json:"num_inference_steps,omitempty"`
	GuidanceScale     *float64 `json:"guidance_scale,omitempty"`
	CFG               *float64 `json:"cfg,omitempty"`
	Image             string   `json:"image,omitempty"`
}

// SiliconFlowGenerateResponse /images/generations 响应体
type SiliconFlowGenerateResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Timings struct {
		Inference float64 `json:"inference"`
	} `json:"timings"`
	Seed int64 `json:"seed"`
}

// SiliconFlowModel /models 列表项
type SiliconFlowModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Generate 调用 /images/generations.
func (c *SiliconFlowClient) Generate(ctx context.Context, req SiliconFlowGenerateRequest) (*SiliconFlowGenerateResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode SiliconFlow request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ResolveEndpointURL(c.baseURL, "/images/generations"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out SiliconFlowGenerateResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListModels 按子类型列出图像模型.
func (c *SiliconFlowClient) ListModels(ctx context.Context, subType string) ([]SiliconFlowModel, error) {
	q := url.Values{}
	q.Set("type", "image")
	q.Set("sub_type", subType)
	endpoint := ResolveEndpointURL(c.baseURL, "/models") + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var out struct {
		Data []SiliconFlowModel `json:"data"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *SiliconFlowClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	c.logger.Debug("calling siliconflow", requestFields(req.Context(), zap.String("method", req.Method), zap.String("url", req.URL.String()))...)

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransportError(SiliconFlowProviderID, "SiliconFlow", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapTransportError(SiliconFlowProviderID, "SiliconFlow", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ReadErrorMessage(body, resp.StatusCode)
		return types.NewVendorAPIError(SiliconFlowProviderID, resp.StatusCode,
			fmt.Sprintf("SiliconFlow API error (%d): %s", resp.StatusCode, msg))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.NewError(types.ErrVendorAPI, "SiliconFlow returned an unreadable response").
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(SiliconFlowProviderID)
	}
	return nil
}
