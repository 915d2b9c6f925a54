package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/BaSui01/imagegen/internal/ctxkeys"
	"github.com/BaSui01/imagegen/types"
	"go.uber.org/zap"
)

// maxErrorBodyBytes 错误体只保留前若干字节，避免把整页 HTML 塞进错误信息
const maxErrorBodyBytes = 512

// doRequest 发送请求并读完响应体；传输层失败统一包装为带厂商前缀的 NetworkError.
func (b *adapterBase) doRequest(req *http.Request) (*http.Response, []byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, nil, wrapTransportError(b.provider.ID, b.provider.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, wrapTransportError(b.provider.ID, b.provider.Name, err)
	}
	return resp, data, nil
}

// postJSON 序列化 body 并 POST，非 2xx 交给 mapErr（为空时用通用映射）.
func (b *adapterBase) postJSON(ctx context.Context, url string, headers map[string]string, body any, out any, mapErr func(int, []byte) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", b.provider.Name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	b.logger.Debug("calling vendor", requestFields(ctx, zap.String("url", url))...)
	resp, data, err := b.doRequest(httpReq)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if mapErr != nil {
			return mapErr(resp.StatusCode, data)
		}
		return b.vendorError(resp.StatusCode, data)
	}
	return b.decode(data, out)
}

// requestFields 附加 context 中的请求标识
func requestFields(ctx context.Context, fields ...zap.Field) []zap.Field {
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctxkeys.ConfigID(ctx); ok {
		fields = append(fields, zap.String("config_id", id))
	}
	return fields
}

func (b *adapterBase) decode(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return types.NewError(types.ErrVendorAPI, fmt.Sprintf("%s returned an unreadable response", b.provider.Name)).
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(b.provider.ID)
	}
	return nil
}

// vendorError 将非 2xx 响应映射为 VendorAPIError，消息优先取厂商 JSON 错误体.
func (b *adapterBase) vendorError(status int, body []byte) error {
	msg := ReadErrorMessage(body, status)
	return types.NewVendorAPIError(b.provider.ID, status,
		fmt.Sprintf("%s API error (%d): %s", b.provider.Name, status, msg))
}

// ReadErrorMessage 读取响应体中的错误消息
// 依次尝试 error.message、error(字符串)、message，最后回退到原始文本或状态行
func ReadErrorMessage(body []byte, status int) string {
	var errResp struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if len(errResp.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			}
			if json.Unmarshal(errResp.Error, &nested) == nil && nested.Message != "" {
				if nested.Type != "" {
					return fmt.Sprintf("%s (type: %s)", nested.Message, nested.Type)
				}
				return nested.Message
			}
			var s string
			if json.Unmarshal(errResp.Error, &s) == nil && s != "" {
				return s
			}
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	if len(text) > maxErrorBodyBytes {
		text = text[:maxErrorBodyBytes] + "..."
	}
	return text
}

// wrapTransportError 超时单独给出可读信息，其余保留原始原因；消息用厂商显示名，Provider 字段用厂商 ID.
func wrapTransportError(providerID, vendor string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.ErrNetwork, fmt.Sprintf("%s request timed out", vendor)).
			WithCause(err).
			WithRetryable(true).
			WithProvider(providerID)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrNetwork, fmt.Sprintf("%s request was cancelled", vendor)).
			WithCause(err).
			WithProvider(providerID)
	}
	return types.NewNetworkError(vendor, err).WithProvider(providerID)
}

func bearer(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}
