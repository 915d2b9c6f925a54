package modelconfig

import (
	"strings"

	"github.com/BaSui01/imagegen/config"
	"github.com/BaSui01/imagegen/image"
)

// =============================================================================
// 🌱 默认配置种子
// =============================================================================

// seed 每个厂商一条默认配置
type seed struct {
	id         string
	name       string
	providerID string
	modelID    string
}

var defaultSeeds = []seed{
	{id: "gemini-default", name: "Gemini 2.5 Flash Image", providerID: image.GeminiProviderID, modelID: "gemini-2.5-flash-image"},
	{id: "openai-default", name: "OpenAI GPT Image 1", providerID: image.OpenAIProviderID, modelID: "gpt-image-1"},
	{id: "openrouter-default", name: "OpenRouter Gemini 2.5 Flash Image", providerID: image.OpenRouterProviderID, modelID: "google/gemini-2.5-flash-image"},
	{id: "seedream-default", name: "Seedream 4.0", providerID: image.SeedreamProviderID, modelID: "doubao-seedream-4-0-250828"},
	{id: "siliconflow-default", name: "SiliconFlow Kolors", providerID: image.SiliconFlowProviderID, modelID: "Kwai-Kolors/Kolors"},
}

// DefaultIDs 返回所有默认配置的 ID
func DefaultIDs() []string {
	ids := make([]string, 0, len(defaultSeeds))
	for _, s := range defaultSeeds {
		ids = append(ids, s.id)
	}
	return ids
}

// DefaultConfigs 根据厂商凭据计算默认配置集合。
// 只有 API key 非空的条目才启用；注册表中不存在的厂商被跳过。
func DefaultConfigs(reg *image.Registry, providers config.ProvidersConfig) map[string]*image.ModelConfig {
	out := make(map[string]*image.ModelConfig, len(defaultSeeds))
	for _, s := range defaultSeeds {
		adapter, err := reg.GetAdapter(s.providerID)
		if err != nil {
			continue
		}
		creds := providers.ByID(s.providerID)
		apiKey := strings.TrimSpace(creds.APIKey)

		conn := map[string]any{"apiKey": apiKey}
		if baseURL := strings.TrimSpace(creds.BaseURL); baseURL != "" {
			conn["baseURL"] = baseURL
		}

		provider := adapter.Provider()
		model := image.ModelFor(adapter, s.modelID)
		out[s.id] = &image.ModelConfig{
			ID:               s.id,
			Name:             s.name,
			ProviderID:       provider.ID,
			ModelID:          s.modelID,
			Enabled:          apiKey != "",
			ConnectionConfig: conn,
			ParamOverrides:   map[string]any{},
			Provider:         &provider,
			Model:            &model,
		}
	}
	return out
}

// =============================================================================
// 🔀 合并
// =============================================================================

// mergeDefaults 把默认集合合并进已存储集合，返回新集合。
//
// 缺失的默认 key 直接插入；已存在的 key 保留用户可编辑字段
// （name、modelId、enabled、connectionConfig、paramOverrides），
// 刷新 provider/model 快照，并补上存储条目缺失的连接字段。
// 非默认 key 原样保留。
func mergeDefaults(reg *image.Registry, stored, defaults map[string]*image.ModelConfig) map[string]*image.ModelConfig {
	merged := make(map[string]*image.ModelConfig, len(stored)+len(defaults))
	for id, cfg := range stored {
		merged[id] = cfg.Clone()
	}

	for id, def := range defaults {
		current, ok := merged[id]
		if !ok || current == nil {
			merged[id] = def.Clone()
			continue
		}

		if current.ConnectionConfig == nil {
			current.ConnectionConfig = make(map[string]any, len(def.ConnectionConfig))
		}
		for field, value := range def.ConnectionConfig {
			if isBlank(current.ConnectionConfig[field]) {
				current.ConnectionConfig[field] = value
			}
		}
		if current.ParamOverrides == nil {
			current.ParamOverrides = map[string]any{}
		}
		if strings.TrimSpace(current.ProviderID) == "" {
			current.ProviderID = def.ProviderID
		}
		if strings.TrimSpace(current.ModelID) == "" {
			current.ModelID = def.ModelID
		}
		refreshSnapshots(reg, current)
	}
	return merged
}

// refreshSnapshots 按当前 providerId/modelId 重建快照；厂商未注册时保持原快照
func refreshSnapshots(reg *image.Registry, cfg *image.ModelConfig) {
	adapter, err := reg.GetAdapter(cfg.ProviderID)
	if err != nil {
		return
	}
	provider := adapter.Provider()
	model := image.ModelFor(adapter, cfg.ModelID)
	cfg.Provider = &provider
	cfg.Model = &model
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
