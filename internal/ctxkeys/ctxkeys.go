package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	configIDKey  contextKey = "config_id"
)

// WithRequestID 设置单次生成调用的 RequestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取 RequestID
func RequestID(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithConfigID 设置当前使用的模型配置 ID
func WithConfigID(ctx context.Context, configID string) context.Context {
	return context.WithValue(ctx, configIDKey, configID)
}

// ConfigID 获取模型配置 ID
func ConfigID(ctx context.Context) (string, bool) {
	return stringValue(ctx, configIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
