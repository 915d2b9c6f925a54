package service

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/imagegen/image"
	"github.com/BaSui01/imagegen/internal/ctxkeys"
	"github.com/BaSui01/imagegen/internal/metrics"
	"github.com/BaSui01/imagegen/internal/telemetry"
	"github.com/BaSui01/imagegen/types"
	"github.com/google/uuid"
	"github.com/samber/lo"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// 请求数量范围
const (
	MinCount = 1
	MaxCount = 4
)

// =============================================================================
// 📡 进度
// =============================================================================

// Stage 单次生成调用的阶段：queued → generating → done | error
type Stage string

const (
	StageQueued     Stage = "queued"
	StageGenerating Stage = "generating"
	StageDone       Stage = "done"
	StageError      Stage = "error"
)

// Progress 进度事件
type Progress struct {
	Stage     Stage
	RequestID string
	ConfigID  string
	Err       error
}

// Handlers 可选的回调集合
type Handlers struct {
	OnProgress func(Progress)
}

func (h *Handlers) emit(p Progress) {
	if h != nil && h.OnProgress != nil {
		h.OnProgress(p)
	}
}

// ConfigSource 按 key 读取模型配置，由 modelconfig.Manager 实现
type ConfigSource interface {
	GetModel(ctx context.Context, id string) (*image.ModelConfig, error)
}

// =============================================================================
// 🖼️ Service
// =============================================================================

// Service 图像生成入口：校验请求、解析启用的配置与适配器、调用生成。
// 不做重试，第一个错误直接返回给调用方。
type Service struct {
	configs  ConfigSource
	registry *image.Registry
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   oteltrace.Tracer
}

// Option Service 构造选项
type Option func(*Service)

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithTracer 设置生成 span 使用的 tracer，默认取全局 provider
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// NewService 创建 Service
func NewService(configs ConfigSource, registry *image.Registry, opts ...Option) *Service {
	s := &Service{
		configs:  configs,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "image_service"))
	return s
}

// ValidateRequest 校验请求：prompt 非空，count（0 视为 1）在 [1,4]，
// 输入图为 PNG/JPEG 且解码后不超过 10 MiB。
func (s *Service) ValidateRequest(req *image.ImageRequest) error {
	return ValidateRequest(req)
}

// ValidateRequest 见 Service.ValidateRequest
func ValidateRequest(req *image.ImageRequest) error {
	if req == nil {
		return types.NewValidationError("request is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return types.NewValidationError("prompt is required")
	}
	count := req.Count
	if count == 0 {
		count = MinCount
	}
	if count < MinCount || count > MaxCount {
		return types.NewValidationError("count must be between %d and %d, got %d", MinCount, MaxCount, req.Count)
	}
	return image.ValidateInputImage(req.InputImage)
}

// Generate 用 modelKey 指向的配置生成图片。
//
// 无论请求的 count 是多少，适配器调用都只生成一张。
func (s *Service) Generate(ctx context.Context, req *image.ImageRequest, modelKey string, handlers *Handlers) (*image.ImageResult, error) {
	requestID := uuid.NewString()
	handlers.emit(Progress{Stage: StageQueued, RequestID: requestID, ConfigID: modelKey})

	fail := func(err error) (*image.ImageResult, error) {
		handlers.emit(Progress{Stage: StageError, RequestID: requestID, ConfigID: modelKey, Err: err})
		return nil, err
	}

	if err := ValidateRequest(req); err != nil {
		return fail(err)
	}
	if strings.TrimSpace(modelKey) == "" {
		return fail(types.NewValidationError("model config key is required"))
	}

	cfg, err := s.resolveConfig(ctx, modelKey)
	if err != nil {
		return fail(err)
	}
	adapter, err := s.registry.GetAdapter(cfg.ProviderID)
	if err != nil {
		return fail(err)
	}
	model := snapshotModel(adapter, cfg)
	if err := image.CheckCapability(model, req); err != nil {
		return fail(err)
	}

	call := *req
	call.Count = 1
	call.ParamOverrides = lo.Assign(req.ParamOverrides)
	if call.InputImage != nil {
		_, payload := image.SplitDataURL(call.InputImage.B64)
		s.metrics.RecordInputImage(cfg.ProviderID, image.DecodedBase64Size(payload))
	}

	handlers.emit(Progress{Stage: StageGenerating, RequestID: requestID, ConfigID: cfg.ID})
	ctx = ctxkeys.WithConfigID(ctxkeys.WithRequestID(ctx, requestID), cfg.ID)
	var span oteltrace.Span
	if s.tracer != nil {
		ctx, span = telemetry.StartGenerateSpanWith(ctx, s.tracer, cfg.ProviderID, cfg.ModelID, cfg.ID)
	} else {
		ctx, span = telemetry.StartGenerateSpan(ctx, cfg.ProviderID, cfg.ModelID, cfg.ID)
	}
	span.SetAttributes(telemetry.AttrRequestID.String(requestID))
	start := time.Now()

	res, err := adapter.Generate(ctx, &call, cfg)
	duration := time.Since(start)
	if err != nil {
		telemetry.EndSpan(span, 0, err)
		s.metrics.RecordGeneration(cfg.ProviderID, cfg.ModelID, err, duration, 0)
		s.logger.Warn("image generation failed",
			zap.String("request_id", requestID),
			zap.String("config_id", cfg.ID),
			zap.String("provider", cfg.ProviderID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return fail(err)
	}

	res = finalize(res, adapter.Provider().ID, cfg, requestID)
	telemetry.EndSpan(span, len(res.Images), nil)
	s.metrics.RecordGeneration(cfg.ProviderID, cfg.ModelID, nil, duration, len(res.Images))
	s.logger.Info("image generated",
		zap.String("request_id", requestID),
		zap.String("config_id", cfg.ID),
		zap.String("provider", cfg.ProviderID),
		zap.String("model", cfg.ModelID),
		zap.Int("images", len(res.Images)),
		zap.Duration("duration", duration),
	)
	handlers.emit(Progress{Stage: StageDone, RequestID: requestID, ConfigID: cfg.ID})
	return res, nil
}

// resolveConfig 配置必须存在且已启用
func (s *Service) resolveConfig(ctx context.Context, key string) (*image.ModelConfig, error) {
	cfg, err := s.configs.GetModel(ctx, key)
	if err != nil {
		if types.IsCode(err, types.ErrNotFound) {
			return nil, types.NewConfigurationError("model config %q not found", key).WithCause(err)
		}
		return nil, err
	}
	if cfg == nil {
		return nil, types.NewConfigurationError("model config %q not found", key)
	}
	if !cfg.Enabled {
		return nil, types.NewConfigurationError("model config %q is disabled", key)
	}
	return cfg, nil
}

// snapshotModel 优先使用配置里保存的模型快照
func snapshotModel(adapter image.Adapter, cfg *image.ModelConfig) image.Model {
	if cfg.Model != nil && cfg.Model.ID == cfg.ModelID {
		return *cfg.Model
	}
	return image.ModelFor(adapter, cfg.ModelID)
}

// finalize 写入元数据并去掉空 notes
func finalize(res *image.ImageResult, providerID string, cfg *image.ModelConfig, requestID string) *image.ImageResult {
	if res == nil {
		res = &image.ImageResult{}
	}
	res.Metadata.ProviderID = providerID
	res.Metadata.ModelID = cfg.ModelID
	res.Metadata.ConfigID = cfg.ID
	res.Metadata.RequestID = requestID

	notes := lo.Filter(res.Notes, func(n string, _ int) bool { return strings.TrimSpace(n) != "" })
	if len(notes) == 0 {
		notes = nil
	}
	res.Notes = notes
	if res.Images == nil {
		res.Images = []image.GeneratedImage{}
	}
	return res
}
