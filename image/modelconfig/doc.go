// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 modelconfig 管理持久化的图像模型配置集合。

# 概述

Manager 把 id -> image.ModelConfig 整体存为一个 JSON blob，
通过 storage.Store.UpdateData 原子读改写。首次使用时根据
config.ProvidersConfig 写入每个厂商一条默认配置，之后每次
启动与已存储集合合并：保留用户字段，刷新 provider/model 快照，
序列化结果不变时不写入。

# 主要能力

  - CRUD：AddModel / UpdateModel / DeleteModel / EnableModel /
    DisableModel / GetModel / ListModels / EnabledModels
  - 导入导出：ExportData 按 ID 排序；ImportData 逐条校验，
    单条失败收集到 ImportResult.Failed，不中断整批
  - Reset：用当前默认集合覆盖存储
*/
package modelconfig
