// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供图像生成模块的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 image、modelconfig、service
等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 错误分类

  - VALIDATION    — 调用方输入不合法，直接返回，不重试
  - CONFIGURATION — provider / 配置 / 连接 schema 问题，在任何网络调用前失败
  - VENDOR_API    — 上游返回非 2xx，消息尽量取自厂商 JSON 错误体
  - NETWORK       — 传输层失败，消息带厂商前缀
  - CAPABILITY    — 模型能力不支持当前请求
*/
package types
