package image

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// effectiveParams 合并顺序：模型默认值 < 配置覆盖 < 请求覆盖.
func effectiveParams(m Model, cfg *ModelConfig, req *ImageRequest) map[string]any {
	return lo.Assign(m.DefaultParams, cfg.ParamOverrides, req.ParamOverrides)
}

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return "", false
		}
		return s, true
	default:
		return fmt.Sprint(s), true
	}
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func paramInt(params map[string]any, key string) (int64, bool) {
	f, ok := paramFloat(params, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// SplitDataURL 拆分 data:<mime>;base64,<payload>；非 data URL 原样返回 payload.
func SplitDataURL(s string) (mimeType, payload string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return "", s
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return "", ""
	}
	meta := strings.TrimPrefix(s[:comma], "data:")
	mimeType = strings.TrimSuffix(meta, ";base64")
	return mimeType, s[comma+1:]
}

// ToDataURL 生成 data URL，已是 data URL 时原样返回.
func ToDataURL(img *InputImage) string {
	if strings.HasPrefix(strings.TrimSpace(img.B64), "data:") {
		return strings.TrimSpace(img.B64)
	}
	mime := strings.ToLower(img.MimeType)
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + strings.TrimSpace(img.B64)
}

func ptrFloat(v float64) *float64 { return &v }
