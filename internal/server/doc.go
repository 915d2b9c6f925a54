// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供运维 HTTP 端点（Prometheus /metrics 与 /healthz）的生命周期管理。

# 概述

Manager 封装 net/http.Server：Start 非阻塞监听，Run 阻塞到
context 取消或服务异常退出，随后在 ShutdownTimeout 内优雅关闭。
信号处理交给调用方的 context（signal.NotifyContext）。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道。
  - Config：监听地址、读写超时与优雅关闭超时。
  - NewOpsHandler：组装 /metrics 与 /healthz 路由。
*/
package server
