// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 imagegen 命令行入口。

# 概述

cmd/imagegen 把多厂商图像生成能力包装为子命令：生成图片、管理
模型配置、查询厂商与模型、暴露 Prometheus 指标。依赖通过
samber/do 注入器按需构造，命令结束时统一关闭。

# 子命令

  - generate       — 按模型配置生成图片，可写入目录
  - configs        — list / add / export / import / enable / disable / delete / reset
  - providers      — 列出已注册厂商
  - models         — 列出厂商可用模型（支持动态拉取的厂商会请求远端）
  - serve-metrics  — 独立端口暴露 /metrics 与 /healthz
  - version        — 构建信息，Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
