// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的图像生成指标采集。

# 概述

Collector 通过 promauto 注册到默认 Registry，所有指标按 namespace
隔离，cmd/imagegen 的 serve-metrics 子命令用 promhttp 暴露。

# 主要能力

  - 生成指标：请求总数（provider/model/status）、耗时直方图、
    返回图片数、输入图解码大小。
  - 配置存储指标：按 operation/status 统计模型配置的读写。

status 标签取自 types.ErrorCode 的小写形式，成功为 "success"，
未分类错误为 "error"。nil *Collector 上的所有记录方法均为空操作。
*/
package metrics
