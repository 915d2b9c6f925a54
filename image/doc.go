// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 image 提供统一的图像生成适配器契约与各厂商实现。

# 概述

本包屏蔽 Gemini、OpenAI、OpenRouter、Seedream（Doubao）与
SiliconFlow 在协议、参数和响应结构上的差异，对上层暴露一致的
ImageRequest / ImageResult 模型。每个厂商由一个 Adapter 实现，
Registry 负责按厂商 ID（大小写不敏感，支持别名）构造新的适配器实例。

# 核心接口

  - Adapter：Provider、Models、BuildDefaultModel、Generate 四个方法。
  - ModelLister：可选接口，支持动态模型发现（SiliconFlow）。
  - Registry：GetAdapter、Register、ProviderIDs、ListModels。

# 生成流程

Generate 统一走 runGenerate：ValidateRequest（prompt 与模型 ID）→
ValidateConfig（providerId 一致、连接 schema 满足）→ 厂商 doGenerate，
之后为结果打上 provider/model/config 标识。连接字段缺失会在任何网络
请求之前以 CONFIGURATION 错误返回。

# 错误语义

  - 非 2xx 响应 → VENDOR_API，消息优先取厂商 JSON 错误体。
  - 传输失败 → NETWORK，消息以厂商名开头。
  - 能力不匹配 → CAPABILITY（由 CheckCapability 判定）。
*/
package image
