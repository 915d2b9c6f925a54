// Package service 提供图像生成的对外入口。
//
// Service.Generate 依次完成请求校验、配置解析（必须存在且已启用）、
// 适配器解析与能力检查，然后以 count=1 调用适配器，
// 通过 Handlers.OnProgress 报告 queued → generating → done | error。
package service
