// =============================================================================
// 🖼️ StubAdapter - 图像适配器模拟实现
// =============================================================================
// 用于测试的可编程适配器，支持固定结果、错误注入与调用记录
//
// 使用方法:
//
//	stub := mocks.NewStubAdapter("test").WithImage(image.GeneratedImage{B64: "ZHVtbXk="})
//	reg.Register("test", stub.Constructor())
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/imagegen/image"
)

// StubModelID 默认模型 ID
const StubModelID = "test-model"

// StubCall 一次 Generate 调用的记录
type StubCall struct {
	Request  image.ImageRequest
	ConfigID string
	ModelID  string
}

// StubAdapter 是 image.Adapter 的模拟实现
type StubAdapter struct {
	mu sync.Mutex

	provider image.Provider
	models   []image.Model

	// 响应配置
	images       []image.GeneratedImage
	text         string
	notes        []string
	err          error
	generateFunc func(ctx context.Context, req *image.ImageRequest, cfg *image.ModelConfig) (*image.ImageResult, error)

	calls []StubCall
}

// =============================================================================
// 🔧 构造函数和 Builder 方法
// =============================================================================

// NewStubAdapter 创建带一个全能力模型的 StubAdapter
func NewStubAdapter(providerID string) *StubAdapter {
	return &StubAdapter{
		provider: image.Provider{
			ID:   providerID,
			Name: "Stub " + providerID,
		},
		models: []image.Model{{
			ID:           StubModelID,
			Name:         "Test Model",
			ProviderID:   providerID,
			Capabilities: image.AllCapabilities(),
		}},
	}
}

// WithConnectionSchema 设置连接 schema
func (s *StubAdapter) WithConnectionSchema(schema image.ConnectionSchema) *StubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider.ConnectionSchema = schema
	s.provider.RequiresAPIKey = len(schema.Required) > 0
	return s
}

// WithModel 追加模型到静态目录
func (s *StubAdapter) WithModel(m image.Model) *StubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ProviderID = s.provider.ID
	s.models = append(s.models, m)
	return s
}

// WithImage 追加一张返回图片
func (s *StubAdapter) WithImage(img image.GeneratedImage) *StubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, img)
	return s
}

// WithText 设置返回文本
func (s *StubAdapter) WithText(text string) *StubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	return s
}

// WithNotes 设置返回 notes
func (s *StubAdapter) WithNotes(notes ...string) *StubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = notes
	return s
}

// WithError 设置 Generate 返回的错误
func (s *StubAdapter) WithError(err error) *StubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// WithGenerateFunc 设置自定义 Generate 逻辑
func (s *StubAdapter) WithGenerateFunc(fn func(ctx context.Context, req *image.ImageRequest, cfg *image.ModelConfig) (*image.ImageResult, error)) *StubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateFunc = fn
	return s
}

// Constructor 返回始终产出同一实例的构造函数，便于断言调用记录
func (s *StubAdapter) Constructor() image.Constructor {
	return func(image.Options) image.Adapter { return s }
}

// =============================================================================
// 🎯 image.Adapter 实现
// =============================================================================

func (s *StubAdapter) Provider() image.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *StubAdapter) Models() []image.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]image.Model, len(s.models))
	copy(out, s.models)
	return out
}

func (s *StubAdapter) BuildDefaultModel(modelID string) image.Model {
	return image.Model{
		ID:           modelID,
		Name:         modelID,
		ProviderID:   s.Provider().ID,
		Capabilities: image.AllCapabilities(),
	}
}

func (s *StubAdapter) Generate(ctx context.Context, req *image.ImageRequest, cfg *image.ModelConfig) (*image.ImageResult, error) {
	s.mu.Lock()
	call := StubCall{}
	if req != nil {
		call.Request = *req
	}
	if cfg != nil {
		call.ConfigID = cfg.ID
		call.ModelID = cfg.ModelID
	}
	s.calls = append(s.calls, call)
	fn, injected := s.generateFunc, s.err
	images := append([]image.GeneratedImage(nil), s.images...)
	text, notes := s.text, append([]string(nil), s.notes...)
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, req, cfg)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if injected != nil {
		return nil, injected
	}

	res := &image.ImageResult{
		Images: images,
		Text:   text,
		Notes:  notes,
		Metadata: image.ResultMetadata{
			ProviderID: s.Provider().ID,
		},
	}
	if cfg != nil {
		res.Metadata.ModelID = cfg.ModelID
		res.Metadata.ConfigID = cfg.ID
	}
	return res, nil
}

// =============================================================================
// 📋 调用记录
// =============================================================================

// Calls 返回所有调用记录
func (s *StubAdapter) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount 返回调用次数
func (s *StubAdapter) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
