package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Image generation error codes
const (
	// ErrValidation 调用方输入不合法（空 prompt、count 越界、MIME 不支持、图片过大）
	ErrValidation ErrorCode = "VALIDATION"
	// ErrConfiguration 未知 provider、配置缺失/禁用、连接字段不满足 schema
	ErrConfiguration ErrorCode = "CONFIGURATION"
	// ErrVendorAPI 上游厂商返回非 2xx
	ErrVendorAPI ErrorCode = "VENDOR_API"
	// ErrNetwork 请求未到达厂商或未拿到响应（超时、DNS、连接重置）
	ErrNetwork ErrorCode = "NETWORK"
	// ErrCapability 模型能力不支持当前请求（例如图生图）
	ErrCapability ErrorCode = "CAPABILITY"
)

// Config store error codes
const (
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrConflict      ErrorCode = "CONFLICT"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewValidationError 创建输入校验错误
func NewValidationError(format string, args ...any) *Error {
	return NewError(ErrValidation, fmt.Sprintf(format, args...))
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(format string, args ...any) *Error {
	return NewError(ErrConfiguration, fmt.Sprintf(format, args...))
}

// NewCapabilityError 创建能力不匹配错误
func NewCapabilityError(format string, args ...any) *Error {
	return NewError(ErrCapability, fmt.Sprintf(format, args...))
}

// NewVendorAPIError 创建上游 HTTP 错误，5xx 与 429 标记为可重试
func NewVendorAPIError(provider string, status int, message string) *Error {
	return &Error{
		Code:       ErrVendorAPI,
		Message:    message,
		HTTPStatus: status,
		Retryable:  status == 429 || status >= 500,
		Provider:   provider,
	}
}

// NewNetworkError wraps a transport failure with the vendor name prefix.
func NewNetworkError(provider string, cause error) *Error {
	return &Error{
		Code:      ErrNetwork,
		Message:   fmt.Sprintf("%s request failed", provider),
		Retryable: true,
		Provider:  provider,
		Cause:     cause,
	}
}

// AsError extracts a *Error from anywhere in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
