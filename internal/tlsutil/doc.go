// Package tlsutil 为访问图像厂商的出站 HTTP 客户端提供 TLS 加固配置（TLS 1.2+，仅 AEAD 密码套件）与可选代理。
package tlsutil
