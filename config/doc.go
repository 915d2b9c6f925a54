// Package config 提供 imagegen 的配置加载与校验。
//
// 配置来源依次为默认值、YAML 文件与 IMAGEGEN_* 环境变量，
// 进程启动时只读取一次，结果显式传给模型配置管理器与存储后端。
package config
