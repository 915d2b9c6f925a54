package modelconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/imagegen/config"
	"github.com/BaSui01/imagegen/image"
	"github.com/BaSui01/imagegen/internal/metrics"
	"github.com/BaSui01/imagegen/internal/storage"
	"github.com/BaSui01/imagegen/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// configSet 存储中的整体结构：id -> 配置
type configSet map[string]*image.ModelConfig

// =============================================================================
// 🗂️ Manager
// =============================================================================

// Manager 管理持久化的模型配置集合。
//
// 整个集合以单个 JSON blob 保存在 storage key 下，每次变更都是一次
// UpdateData 调用，不在内存中缓存集合。
type Manager struct {
	store     storage.Store
	registry  *image.Registry
	providers config.ProvidersConfig
	key       string
	logger    *zap.Logger
	metrics   *metrics.Collector

	initMu      sync.Mutex
	initialized bool
}

// Option Manager 构造选项
type Option func(*Manager)

// WithStorageKey 指定存储 key
func WithStorageKey(key string) Option {
	return func(m *Manager) {
		if strings.TrimSpace(key) != "" {
			m.key = key
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// NewManager 创建 Manager。providers 是进程启动时加载一次的厂商凭据。
func NewManager(store storage.Store, registry *image.Registry, providers config.ProvidersConfig, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		registry:  registry,
		providers: providers,
		key:       config.DefaultStorageKey,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "model_config_manager"))
	return m
}

// Key 返回存储 key
func (m *Manager) Key() string { return m.key }

// =============================================================================
// 🌱 初始化
// =============================================================================

// EnsureInitialized 首次调用时写入或合并默认配置；失败后下次调用会重试。
func (m *Manager) EnsureInitialized(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return nil
	}

	defaults := DefaultConfigs(m.registry, m.providers)
	var wrote bool
	err := m.store.UpdateData(ctx, m.key, func(current []byte, exists bool) ([]byte, error) {
		wrote = false
		if !exists {
			wrote = true
			return json.Marshal(configSet(defaults))
		}
		stored, err := decodeSet(current)
		if err != nil {
			return nil, err
		}
		before, err := json.Marshal(stored)
		if err != nil {
			return nil, err
		}
		after, err := json.Marshal(configSet(mergeDefaults(m.registry, stored, defaults)))
		if err != nil {
			return nil, err
		}
		if bytes.Equal(before, after) {
			return nil, storage.ErrSkipWrite
		}
		wrote = true
		return after, nil
	})
	m.metrics.RecordConfigStoreOp("init", err)
	if err != nil {
		return fmt.Errorf("initialize model configs: %w", err)
	}

	m.initialized = true
	m.logger.Info("model configs initialized",
		zap.String("key", m.key),
		zap.Int("defaults", len(defaults)),
		zap.Bool("persisted", wrote),
	)
	return nil
}

// Reset 用当前默认集合覆盖存储内容
func (m *Manager) Reset(ctx context.Context) error {
	data, err := json.Marshal(configSet(DefaultConfigs(m.registry, m.providers)))
	if err != nil {
		return err
	}
	err = m.store.SetItem(ctx, m.key, data)
	m.metrics.RecordConfigStoreOp("reset", err)
	if err != nil {
		return fmt.Errorf("reset model configs: %w", err)
	}
	m.initMu.Lock()
	m.initialized = true
	m.initMu.Unlock()
	return nil
}

// =============================================================================
// 📖 读取
// =============================================================================

func (m *Manager) load(ctx context.Context) (configSet, error) {
	if err := m.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	data, err := m.store.GetItem(ctx, m.key)
	if storage.IsNotFound(err) {
		return configSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load model configs: %w", err)
	}
	return decodeSet(data)
}

// GetModel 按 ID 读取配置，不存在时返回 NOT_FOUND 错误
func (m *Manager) GetModel(ctx context.Context, id string) (*image.ModelConfig, error) {
	set, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	cfg, ok := set[id]
	if !ok || cfg == nil {
		return nil, notFound(id)
	}
	return cfg, nil
}

// ListModels 按 ID 排序返回全部配置
func (m *Manager) ListModels(ctx context.Context) ([]*image.ModelConfig, error) {
	set, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return set.sorted(), nil
}

// EnabledModels 只返回已启用的配置
func (m *Manager) EnabledModels(ctx context.Context) ([]*image.ModelConfig, error) {
	all, err := m.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(c *image.ModelConfig, _ int) bool { return c.Enabled }), nil
}

// =============================================================================
// ✏️ 变更
// =============================================================================

// mutate 在一次原子读改写中对集合应用 fn
func (m *Manager) mutate(ctx context.Context, op string, fn func(set configSet) error) error {
	if err := m.EnsureInitialized(ctx); err != nil {
		return err
	}
	err := m.store.UpdateData(ctx, m.key, func(current []byte, exists bool) ([]byte, error) {
		set := configSet{}
		if exists {
			decoded, err := decodeSet(current)
			if err != nil {
				return nil, err
			}
			set = decoded
		}
		if err := fn(set); err != nil {
			return nil, err
		}
		return json.Marshal(set)
	})
	m.metrics.RecordConfigStoreOp(op, err)
	return err
}

// AddModel 新增配置，ID 重复时返回 CONFLICT 错误。
// 缺失的 provider/model 快照由注册表补齐。
func (m *Manager) AddModel(ctx context.Context, cfg *image.ModelConfig) error {
	if err := ValidateStructure(cfg); err != nil {
		return err
	}
	next := cfg.Clone()
	if err := m.prepare(next); err != nil {
		return err
	}
	if next.Enabled {
		if err := image.ValidateConfig(*next.Provider, next); err != nil {
			return err
		}
	}

	err := m.mutate(ctx, "add", func(set configSet) error {
		if _, exists := set[next.ID]; exists {
			return types.NewError(types.ErrConflict, fmt.Sprintf("model config %q already exists", next.ID))
		}
		set[next.ID] = next
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("model config added", zap.String("id", next.ID), zap.String("provider", next.ProviderID))
	return nil
}

// Patch 配置的部分更新，nil 字段保持不变。
// ConnectionConfig 与 ParamOverrides 按 key 合并进现有值。
type Patch struct {
	Name             *string
	ModelID          *string
	Enabled          *bool
	ConnectionConfig map[string]any
	ParamOverrides   map[string]any
}

// UpdateModel 更新已存在的配置，返回更新后的副本
func (m *Manager) UpdateModel(ctx context.Context, id string, patch Patch) (*image.ModelConfig, error) {
	var updated *image.ModelConfig
	err := m.mutate(ctx, "update", func(set configSet) error {
		current, ok := set[id]
		if !ok || current == nil {
			return notFound(id)
		}
		next := current.Clone()
		if patch.Name != nil {
			next.Name = *patch.Name
		}
		if patch.ModelID != nil && *patch.ModelID != next.ModelID {
			next.ModelID = *patch.ModelID
			refreshSnapshots(m.registry, next)
		}
		if patch.Enabled != nil {
			next.Enabled = *patch.Enabled
		}
		if patch.ConnectionConfig != nil {
			next.ConnectionConfig = lo.Assign(next.ConnectionConfig, patch.ConnectionConfig)
		}
		if patch.ParamOverrides != nil {
			next.ParamOverrides = lo.Assign(next.ParamOverrides, patch.ParamOverrides)
		}

		if err := ValidateStructure(next); err != nil {
			return err
		}
		if next.Enabled {
			if err := m.validateConnection(next); err != nil {
				return err
			}
		}
		set[id] = next
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("model config updated", zap.String("id", id))
	return updated, nil
}

// DeleteModel 删除配置，不存在时返回 NOT_FOUND 错误
func (m *Manager) DeleteModel(ctx context.Context, id string) error {
	err := m.mutate(ctx, "delete", func(set configSet) error {
		if _, ok := set[id]; !ok {
			return notFound(id)
		}
		delete(set, id)
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("model config deleted", zap.String("id", id))
	return nil
}

// EnableModel 重新校验配置（含连接 schema）后启用
func (m *Manager) EnableModel(ctx context.Context, id string) error {
	return m.setEnabled(ctx, id, true)
}

// DisableModel 重新校验配置结构后停用
func (m *Manager) DisableModel(ctx context.Context, id string) error {
	return m.setEnabled(ctx, id, false)
}

func (m *Manager) setEnabled(ctx context.Context, id string, enabled bool) error {
	op := "disable"
	if enabled {
		op = "enable"
	}
	err := m.mutate(ctx, op, func(set configSet) error {
		current, ok := set[id]
		if !ok || current == nil {
			return notFound(id)
		}
		if err := ValidateStructure(current); err != nil {
			return err
		}
		if enabled {
			if err := m.validateConnection(current); err != nil {
				return err
			}
		}
		current.Enabled = enabled
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("model config toggled", zap.String("id", id), zap.Bool("enabled", enabled))
	return nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// prepare 规范化 providerId 并补齐快照，厂商未注册时返回配置错误
func (m *Manager) prepare(cfg *image.ModelConfig) error {
	canonical, ok := m.registry.Resolve(cfg.ProviderID)
	if !ok {
		return types.NewConfigurationError("unsupported image provider: %q", cfg.ProviderID)
	}
	cfg.ProviderID = canonical
	if cfg.ConnectionConfig == nil {
		cfg.ConnectionConfig = map[string]any{}
	}
	if cfg.Provider == nil || cfg.Model == nil || cfg.Provider.ID != canonical || cfg.Model.ID != cfg.ModelID {
		refreshSnapshots(m.registry, cfg)
	}
	return nil
}

// validateConnection 优先使用注册表中的最新 schema，其次使用快照
func (m *Manager) validateConnection(cfg *image.ModelConfig) error {
	if adapter, err := m.registry.GetAdapter(cfg.ProviderID); err == nil {
		return image.ValidateConfig(adapter.Provider(), cfg)
	}
	if cfg.Provider != nil {
		return image.ValidateConfig(*cfg.Provider, cfg)
	}
	return types.NewConfigurationError("unsupported image provider: %q", cfg.ProviderID)
}

// ValidateStructure 检查 id、name、providerId、modelId 非空
func ValidateStructure(cfg *image.ModelConfig) error {
	if cfg == nil {
		return types.NewValidationError("model config is required")
	}
	fields := []struct{ name, value string }{
		{"id", cfg.ID},
		{"name", cfg.Name},
		{"providerId", cfg.ProviderID},
		{"modelId", cfg.ModelID},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return types.NewValidationError("model config field %q is required", f.name)
		}
	}
	return nil
}

func notFound(id string) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("model config %q not found", id))
}

func decodeSet(data []byte) (configSet, error) {
	set := configSet{}
	if len(bytes.TrimSpace(data)) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode model configs: %w", err)
	}
	return set, nil
}

func (s configSet) sorted() []*image.ModelConfig {
	ids := lo.Keys(s)
	sort.Strings(ids)
	out := make([]*image.ModelConfig, 0, len(ids))
	for _, id := range ids {
		if s[id] != nil {
			out = append(out, s[id])
		}
	}
	return out
}
