// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 imagegen 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertErrorCode / AssertErrorContains
  - 存储辅助: CountingStore 统计真实写入次数，用于校验合并幂等
  - 数据工具: MustJSON / MustParseJSON / WaitFor

# 子包

  - testutil/mocks: StubAdapter（可编程的图像适配器）
  - testutil/fixtures: 输入图、模型配置等样例数据

# 使用示例

	ctx := testutil.TestContext(t)
	stub := mocks.NewStubAdapter("test").WithImage(image.GeneratedImage{B64: "ZHVtbXk="})
	reg := image.NewEmptyRegistry(image.Options{})
	reg.Register("test", stub.Constructor())
*/
package testutil
