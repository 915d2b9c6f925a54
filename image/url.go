package image

import (
	"strings"
)

// ResolveBaseURL 供 SDK 形态的厂商使用：优先 connectionConfig.baseURL，
// 否则使用 provider 默认值，再交给厂商的 normalize 统一后缀.
func ResolveBaseURL(cfg *ModelConfig, p Provider, normalize func(string) string) string {
	base := strings.TrimSpace(cfg.BaseURL())
	if base == "" {
		base = p.DefaultBaseURL
	}
	if normalize != nil {
		return normalize(base)
	}
	return strings.TrimRight(base, "/")
}

// ResolveEndpointURL 供原始 HTTP 厂商使用：在规范化后的 base 上拼接路径.
func ResolveEndpointURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ensureVersionSuffix 保证 base 以 suffix 结尾（如 /v1、/api/v1），
// 已部分包含时只补齐缺失的段，例如 ".../api" + "/api/v1" → ".../api/v1".
func ensureVersionSuffix(base, suffix string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	suffix = "/" + strings.Trim(suffix, "/")
	if strings.HasSuffix(base, suffix) {
		return base
	}
	segments := strings.Split(strings.Trim(suffix, "/"), "/")
	for k := len(segments) - 1; k > 0; k-- {
		head := "/" + strings.Join(segments[:k], "/")
		if strings.HasSuffix(base, head) {
			return base + "/" + strings.Join(segments[k:], "/")
		}
	}
	return base + suffix
}
