package tlsutil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// aeadCipherSuites TLS 1.2 下允许的密码套件，TLS 1.3 的套件不可配置
var aeadCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// ClientConfig 出站客户端配置
type ClientConfig struct {
	// Timeout 整个请求的超时，图片生成通常需要较长时间，0 表示不限
	Timeout time.Duration
	// ProxyURL 为空时沿用环境变量代理
	ProxyURL string
}

// DefaultTLSConfig 加固的 TLS 配置
func DefaultTLSConfig() *tls.Config {
	suites := make([]uint16, len(aeadCipherSuites))
	copy(suites, aeadCipherSuites)
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: suites,
	}
}

// NewTransport 创建带 TLS 加固的 Transport
func NewTransport(proxyURL string) (*http.Transport, error) {
	proxy := http.ProxyFromEnvironment
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url: %q", proxyURL)
		}
		proxy = http.ProxyURL(u)
	}
	return &http.Transport{
		Proxy:           proxy,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}, nil
}

// NewHTTPClient 所有厂商共享的出站客户端
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	transport, err := NewTransport(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	return &http.Client{Timeout: cfg.Timeout, Transport: transport}, nil
}
