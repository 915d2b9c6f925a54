package image

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Adapter 定义了图像厂商适配器接口.
type Adapter interface {
	// Provider 返回厂商元数据（每次构造时新建，只读）。
	Provider() Provider

	// Models 返回静态模型目录，不做任何 I/O。
	Models() []Model

	// BuildDefaultModel 为目录外的模型 ID 合成 Model，默认授予全部能力。
	BuildDefaultModel(modelID string) Model

	// Generate 校验请求与配置后调用厂商接口，返回归一化结果。
	Generate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error)
}

// ModelLister 是支持动态模型发现的适配器实现的可选接口.
type ModelLister interface {
	ListModels(ctx context.Context, cfg *ModelConfig) ([]Model, error)
}

// Options 适配器构造参数
type Options struct {
	// HTTPClient 为空时按适配器默认超时新建；可注入带代理的 Transport。
	HTTPClient *http.Client
	Logger     *zap.Logger
}

const defaultHTTPTimeout = 120 * time.Second

// adapterBase 是各厂商共享的组合助手，承担模板方法中的公共部分.
type adapterBase struct {
	provider Provider
	models   []Model
	client   *http.Client
	logger   *zap.Logger
}

func newAdapterBase(p Provider, models []Model, opts Options) adapterBase {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return adapterBase{
		provider: p,
		models:   models,
		client:   client,
		logger:   logger.With(zap.String("component", "image_adapter"), zap.String("provider", p.ID)),
	}
}

func (b *adapterBase) Provider() Provider { return b.provider }

func (b *adapterBase) Models() []Model {
	out := make([]Model, len(b.models))
	copy(out, b.models)
	return out
}

func (b *adapterBase) BuildDefaultModel(modelID string) Model {
	return Model{
		ID:           modelID,
		Name:         modelID,
		Description:  "Custom model",
		ProviderID:   b.provider.ID,
		Capabilities: AllCapabilities(),
	}
}

// ModelFor 在静态目录中查找模型，找不到时用 BuildDefaultModel 合成.
func ModelFor(a Adapter, modelID string) Model {
	for _, m := range a.Models() {
		if m.ID == modelID {
			return m
		}
	}
	return a.BuildDefaultModel(modelID)
}

type generateFunc func(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error)

// runGenerate 依次执行 ValidateRequest → ValidateConfig → doGenerate，
// 并为结果打上 provider/model/config 标识.
func runGenerate(ctx context.Context, a Adapter, req *ImageRequest, cfg *ModelConfig, doGenerate generateFunc) (*ImageResult, error) {
	if err := ValidateRequest(req, cfg); err != nil {
		return nil, err
	}
	provider := a.Provider()
	if err := ValidateConfig(provider, cfg); err != nil {
		return nil, err
	}

	res, err := doGenerate(ctx, req, cfg)
	if err != nil {
		return nil, err
	}
	res.Metadata.ProviderID = provider.ID
	res.Metadata.ModelID = cfg.ModelID
	res.Metadata.ConfigID = cfg.ID
	return res, nil
}
