package image

// =============================================================================
// 🏷️ Provider / Model 元数据
// =============================================================================

// FieldType 连接字段的基本类型
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// ConnectionSchema 描述 provider 对 connectionConfig 的字段约束，
// 同时供适配器校验和 UI 渲染连接表单使用。
type ConnectionSchema struct {
	Required   []string             `json:"required"`
	Optional   []string             `json:"optional"`
	FieldTypes map[string]FieldType `json:"fieldTypes"`
}

// Provider 描述一个图像厂商，由适配器构造，只读。
type Provider struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	RequiresAPIKey        bool             `json:"requiresApiKey"`
	DefaultBaseURL        string           `json:"defaultBaseUrl"`
	SupportsDynamicModels bool             `json:"supportsDynamicModels"`
	ConnectionSchema      ConnectionSchema `json:"connectionSchema"`
}

// Capabilities 模型能力集合
type Capabilities struct {
	Text2Image  bool `json:"text2image"`
	Image2Image bool `json:"image2image"`
	MultiImage  bool `json:"multiImage"`
}

// AllCapabilities 未知模型默认授予全部能力
func AllCapabilities() Capabilities {
	return Capabilities{Text2Image: true, Image2Image: true, MultiImage: true}
}

// ParamDefinition 用户可调的生成参数定义
type ParamDefinition struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean
	Default     any      `json:"default,omitempty"`
	Allowed     []any    `json:"allowed,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Model 描述 provider 的一个生成模型
type Model struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	ProviderID    string            `json:"providerId"`
	Capabilities  Capabilities      `json:"capabilities"`
	Parameters    []ParamDefinition `json:"parameterDefinitions,omitempty"`
	DefaultParams map[string]any    `json:"defaultParameterValues,omitempty"`
}

// =============================================================================
// 💾 持久化配置
// =============================================================================

// ModelConfig 是持久化的自包含配置单元。
//
// Provider 与 Model 是保存时的快照，渲染和校验无需重新解析适配器；
// 快照只在 merge 时刷新，读取时不会刷新。
type ModelConfig struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	ProviderID       string         `json:"providerId"`
	ModelID          string         `json:"modelId"`
	Enabled          bool           `json:"enabled"`
	ConnectionConfig map[string]any `json:"connectionConfig"`
	ParamOverrides   map[string]any `json:"paramOverrides"`
	Provider         *Provider      `json:"provider,omitempty"`
	Model            *Model         `json:"model,omitempty"`
}

// Clone 返回深度足够的副本，调用方可以安全修改 map 字段。
func (c *ModelConfig) Clone() *ModelConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.ConnectionConfig = cloneMap(c.ConnectionConfig)
	out.ParamOverrides = cloneMap(c.ParamOverrides)
	if c.Provider != nil {
		p := *c.Provider
		out.Provider = &p
	}
	if c.Model != nil {
		m := *c.Model
		out.Model = &m
	}
	return &out
}

// StringField 读取 connectionConfig 中的字符串字段
func (c *ModelConfig) StringField(name string) string {
	if c == nil || c.ConnectionConfig == nil {
		return ""
	}
	s, _ := c.ConnectionConfig[name].(string)
	return s
}

// APIKey 便捷读取 apiKey
func (c *ModelConfig) APIKey() string { return c.StringField("apiKey") }

// BaseURL 便捷读取 baseURL
func (c *ModelConfig) BaseURL() string { return c.StringField("baseURL") }

// =============================================================================
// 📨 请求 / 结果
// =============================================================================

// InputImage 单张输入图，B64 为 base64 负载（可带 data URL 前缀）
type InputImage struct {
	B64      string `json:"b64"`
	MimeType string `json:"mimeType"`
}

// ImageRequest 一次生成请求
type ImageRequest struct {
	Prompt         string         `json:"prompt"`
	InputImage     *InputImage    `json:"inputImage,omitempty"`
	Count          int            `json:"count,omitempty"`
	ParamOverrides map[string]any `json:"paramOverrides,omitempty"`
}

// GeneratedImage 生成的单张图片，字段按厂商返回情况部分填充
type GeneratedImage struct {
	B64      string `json:"b64,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ResultMetadata 结果元数据
type ResultMetadata struct {
	ProviderID string         `json:"providerId"`
	ModelID    string         `json:"modelId"`
	ConfigID   string         `json:"configId"`
	RequestID  string         `json:"requestId,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// ImageResult 归一化后的生成结果
type ImageResult struct {
	Images   []GeneratedImage `json:"images"`
	Text     string           `json:"text,omitempty"`
	Notes    []string         `json:"notes,omitempty"`
	Metadata ResultMetadata   `json:"metadata"`
}

// setExtra 写入厂商扩展元数据
func (r *ImageResult) setExtra(key string, value any) {
	if r.Metadata.Extra == nil {
		r.Metadata.Extra = make(map[string]any)
	}
	r.Metadata.Extra[key] = value
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
