// =============================================================================
// imagegen 主入口
// =============================================================================
// 多厂商图像生成命令行
//
// 使用方法:
//
//	imagegen generate --model gemini-default --prompt "a cat"   # 生成图片
//	imagegen configs list                                      # 列出模型配置
//	imagegen configs export --format yaml > configs.yaml       # 导出配置
//	imagegen configs import configs.yaml                       # 导入配置
//	imagegen providers                                         # 列出厂商
//	imagegen models --provider siliconflow                     # 列出模型
//	imagegen serve-metrics                                     # 暴露 /metrics
//	imagegen version                                           # 显示版本信息
// =============================================================================
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/imagegen/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = withApp(os.Args[2:], "generate", runGenerate)
	case "configs":
		err = runConfigs(os.Args[2:])
	case "providers":
		err = withApp(os.Args[2:], "providers", runProviders)
	case "models":
		err = withApp(os.Args[2:], "models", runModels)
	case "serve-metrics":
		err = withApp(os.Args[2:], "serve-metrics", runServeMetrics)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// ⚙️ 配置加载
// =============================================================================

// loadConfig 按 默认值 → YAML → 环境变量 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "imagegen %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `imagegen - multi-vendor image generation

Usage:
  imagegen <command> [options]

Commands:
  generate        Generate an image with a stored model config
  configs         Manage model configs (list, add, export, import, enable, disable, delete, reset)
  providers       List supported image providers
  models          List models of a provider
  serve-metrics   Serve Prometheus metrics
  version         Show version information
  help            Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'generate':
  --model <key>     Model config key (required)
  --prompt <text>   Prompt (required)
  --count <n>       Requested image count, 1-4
  --input <file>    Input image (PNG or JPEG) for image-to-image
  --param k=v       Parameter override, repeatable
  --out <dir>       Directory to write generated images to

Examples:
  imagegen generate --model openai-default --prompt "A scenic mountain with lake"
  imagegen generate --model seedream-default --prompt "make it snowy" --input lake.png --out ./out
  imagegen configs list
  imagegen configs add --provider siliconflow --model Qwen/Qwen-Image --api-key sk-xxx --enable
  imagegen configs export --format yaml --out configs.yaml
  imagegen configs import configs.yaml
  imagegen configs enable gemini-default
  imagegen models --provider siliconflow
  imagegen serve-metrics --config /etc/imagegen/config.yaml`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
