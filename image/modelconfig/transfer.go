package modelconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/imagegen/image"
	"github.com/BaSui01/imagegen/internal/storage"
	"github.com/BaSui01/imagegen/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 导入 / 导出
// =============================================================================

// ImportFailure 单个导入条目的失败原因
type ImportFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Err   error  `json:"-"`
}

// Error 返回失败描述
func (f ImportFailure) Error() string {
	if f.ID != "" {
		return fmt.Sprintf("item %d (%s): %v", f.Index, f.ID, f.Err)
	}
	return fmt.Sprintf("item %d: %v", f.Index, f.Err)
}

// ImportResult 导入结果，单条失败不会中断整批
type ImportResult struct {
	Imported []string        `json:"imported"`
	Failed   []ImportFailure `json:"failed,omitempty"`
}

// ExportData 按 ID 排序导出全部配置
func (m *Manager) ExportData(ctx context.Context) ([]*image.ModelConfig, error) {
	configs, err := m.ListModels(ctx)
	m.metrics.RecordConfigStoreOp("export", err)
	return configs, err
}

// ImportData 导入 JSON 数组形式的配置列表
func (m *Manager) ImportData(ctx context.Context, data json.RawMessage) (*ImportResult, error) {
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, types.NewValidationError("import data must be a JSON array of model configs").WithCause(err)
	}
	return m.ImportItems(ctx, items)
}

// ImportItems 逐条校验并合并到已有 ID 或新建。
// 只有存储失败会返回 error，条目错误收集在 ImportResult.Failed 中。
func (m *Manager) ImportItems(ctx context.Context, items []map[string]any) (*ImportResult, error) {
	var result *ImportResult
	err := m.mutate(ctx, "import", func(set configSet) error {
		// 存储层可能重试回调，每次都从头收集
		result = &ImportResult{Imported: []string{}}
		for i, item := range items {
			cfg, err := decodeImportItem(item)
			if err == nil {
				err = m.prepare(cfg)
			}
			if err == nil {
				if existing, ok := set[cfg.ID]; ok && existing != nil {
					cfg = mergeImported(existing, cfg)
				}
				// 启用的条目与 AddModel/EnableModel 一样要求连接字段满足 schema
				if cfg.Enabled {
					err = m.validateConnection(cfg)
				}
			}
			if err != nil {
				id, _ := item["id"].(string)
				result.Failed = append(result.Failed, ImportFailure{Index: i, ID: id, Err: err})
				continue
			}
			set[cfg.ID] = cfg
			result.Imported = append(result.Imported, cfg.ID)
		}
		if len(result.Imported) == 0 {
			return storage.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Failed) > 0 {
		m.logger.Warn("model config import had failures",
			zap.Int("imported", len(result.Imported)),
			zap.Int("failed", len(result.Failed)),
		)
		for _, f := range result.Failed {
			m.logger.Debug("import item rejected", zap.Int("index", f.Index), zap.String("id", f.ID), zap.Error(f.Err))
		}
	} else {
		m.logger.Info("model configs imported", zap.Int("imported", len(result.Imported)))
	}
	return result, nil
}

// decodeImportItem 结构校验：id、name、providerId、modelId 为非空字符串，enabled 为布尔值
func decodeImportItem(item map[string]any) (*image.ModelConfig, error) {
	if item == nil {
		return nil, types.NewValidationError("import item must be an object")
	}
	for _, field := range []string{"id", "name", "providerId", "modelId"} {
		s, ok := item[field].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, types.NewValidationError("import item field %q must be a non-empty string", field)
		}
	}
	if _, ok := item["enabled"].(bool); !ok {
		return nil, types.NewValidationError("import item field %q must be a boolean", "enabled")
	}
	for _, field := range []string{"connectionConfig", "paramOverrides"} {
		if v, ok := item[field]; ok && v != nil {
			if _, isObj := v.(map[string]any); !isObj {
				return nil, types.NewValidationError("import item field %q must be an object", field)
			}
		}
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, types.NewValidationError("import item is not serializable").WithCause(err)
	}
	var cfg image.ModelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, types.NewValidationError("import item has invalid shape").WithCause(err)
	}
	return &cfg, nil
}

// mergeImported 导入条目覆盖标量字段，map 字段按 key 合并
func mergeImported(existing, incoming *image.ModelConfig) *image.ModelConfig {
	out := existing.Clone()
	out.Name = incoming.Name
	out.ProviderID = incoming.ProviderID
	out.ModelID = incoming.ModelID
	out.Enabled = incoming.Enabled
	out.ConnectionConfig = lo.Assign(out.ConnectionConfig, incoming.ConnectionConfig)
	out.ParamOverrides = lo.Assign(out.ParamOverrides, incoming.ParamOverrides)
	out.Provider = incoming.Provider
	out.Model = incoming.Model
	return out
}
