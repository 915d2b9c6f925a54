// =============================================================================
// 📦 测试数据工厂 - 图像与模型配置
// =============================================================================
package fixtures

import (
	"strings"

	"github.com/BaSui01/imagegen/image"
)

// PNGBase64 1x1 透明 PNG
const PNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// DummyB64 "dummy" 的 base64
const DummyB64 = "ZHVtbXk="

// InputPNG 返回一张合法的 PNG 输入图
func InputPNG() *image.InputImage {
	return &image.InputImage{B64: PNGBase64, MimeType: "image/png"}
}

// Base64OfSize 返回解码后恰好 n 字节的 base64 负载（n 需为 3 的倍数以避免填充）
func Base64OfSize(n int) string {
	return strings.Repeat("A", n/3*4)
}

// ModelConfig 返回启用状态的最小模型配置
func ModelConfig(id, providerID, modelID string) *image.ModelConfig {
	return &image.ModelConfig{
		ID:               id,
		Name:             "Config " + id,
		ProviderID:       providerID,
		ModelID:          modelID,
		Enabled:          true,
		ConnectionConfig: map[string]any{},
		ParamOverrides:   map[string]any{},
	}
}
