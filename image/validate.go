package image

import (
	"math"
	"strings"

	"github.com/BaSui01/imagegen/types"
)

// MaxInputImageBytes 输入图解码后的大小上限（10 MiB）
const MaxInputImageBytes = 10 << 20

// ValidateRequest 适配器侧的请求校验：prompt 非空且配置携带模型 ID.
func ValidateRequest(req *ImageRequest, cfg *ModelConfig) error {
	if req == nil {
		return types.NewValidationError("request is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return types.NewValidationError("prompt is required")
	}
	if cfg == nil || strings.TrimSpace(cfg.ModelID) == "" {
		return types.NewValidationError("model id is required")
	}
	return nil
}

// ValidateConfig 校验连接 schema，并要求配置的 providerId 与适配器一致.
func ValidateConfig(p Provider, cfg *ModelConfig) error {
	if cfg == nil {
		return types.NewConfigurationError("model config is required")
	}
	if cfg.ProviderID != p.ID {
		return types.NewConfigurationError("config %q belongs to provider %q, adapter is %q", cfg.ID, cfg.ProviderID, p.ID)
	}
	if err := ValidateConnection(p.ConnectionSchema, cfg.ConnectionConfig); err != nil {
		return err.WithProvider(p.ID)
	}
	return nil
}

// ValidateConnection 检查必填字段存在且非空，所有已声明类型的字段类型正确.
func ValidateConnection(schema ConnectionSchema, conn map[string]any) *types.Error {
	for _, field := range schema.Required {
		v, ok := conn[field]
		if !ok || v == nil {
			return types.NewConfigurationError("missing required connection field %q", field)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return types.NewConfigurationError("missing required connection field %q", field)
		}
	}
	for field, want := range schema.FieldTypes {
		v, ok := conn[field]
		if !ok || v == nil {
			continue
		}
		if !matchesFieldType(v, want) {
			return types.NewConfigurationError("connection field %q must be a %s", field, want)
		}
	}
	return nil
}

func matchesFieldType(v any, want FieldType) bool {
	switch want {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldBoolean:
		_, ok := v.(bool)
		return ok
	case FieldNumber:
		switch n := v.(type) {
		case float64:
			return !math.IsNaN(n)
		case float32, int, int32, int64:
			return true
		}
		return false
	default:
		return true
	}
}

// CheckCapability 有输入图但模型不支持图生图时拒绝.
func CheckCapability(m Model, req *ImageRequest) error {
	if req != nil && req.InputImage != nil && !m.Capabilities.Image2Image {
		return types.NewCapabilityError("model %q does not support image-to-image generation", m.ID).
			WithProvider(m.ProviderID)
	}
	return nil
}

// ValidateInputImage MIME 仅允许 PNG/JPEG，解码后大小不超过 MaxInputImageBytes.
func ValidateInputImage(img *InputImage) error {
	if img == nil {
		return nil
	}
	mime := strings.ToLower(strings.TrimSpace(img.MimeType))
	if mime != "image/png" && mime != "image/jpeg" {
		return types.NewValidationError("input image must be PNG or JPEG (image/png, image/jpeg), got %q", img.MimeType)
	}
	_, payload := SplitDataURL(img.B64)
	if strings.TrimSpace(payload) == "" {
		return types.NewValidationError("input image data is empty")
	}
	if size := DecodedBase64Size(payload); size > MaxInputImageBytes {
		return types.NewValidationError("input image is %d bytes after decoding, limit is %d bytes (10MB)", size, MaxInputImageBytes)
	}
	return nil
}

// DecodedBase64Size 按 base64 长度减去填充计算解码后字节数，无需真正解码.
func DecodedBase64Size(b64 string) int {
	s := strings.TrimSpace(b64)
	padding := 0
	if strings.HasSuffix(s, "==") {
		padding = 2
	} else if strings.HasSuffix(s, "=") {
		padding = 1
	}
	return len(s)*3/4 - padding
}
