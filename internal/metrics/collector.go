// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strings"
	"time"

	"github.com/BaSui01/imagegen/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 生成指标
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	imagesGenerated    *prometheus.CounterVec
	inputImageBytes    *prometheus.HistogramVec

	// 配置存储指标
	configStoreOps *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到 prometheus 默认注册表
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_generations_total",
			Help:      "Total number of image generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_generation_duration_seconds",
			Help:      "Image generation duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	c.imagesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_images_generated_total",
			Help:      "Total number of images returned by vendors",
		},
		[]string{"provider"},
	)

	c.inputImageBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_input_image_bytes",
			Help:      "Decoded size of input images in bytes",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 6),
		},
		[]string{"provider"},
	)

	c.configStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_config_store_operations_total",
			Help:      "Total number of model config store operations",
		},
		[]string{"operation", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🖼️ 生成指标记录
// =============================================================================

// RecordGeneration 记录一次生成请求；images 为成功时返回的图片数
func (c *Collector) RecordGeneration(provider, model string, err error, duration time.Duration, images int) {
	if c == nil {
		return
	}
	c.generationsTotal.WithLabelValues(provider, model, Status(err)).Inc()
	c.generationDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if images > 0 {
		c.imagesGenerated.WithLabelValues(provider).Add(float64(images))
	}
}

// RecordInputImage 记录输入图解码后的大小
func (c *Collector) RecordInputImage(provider string, bytes int) {
	if c == nil {
		return
	}
	c.inputImageBytes.WithLabelValues(provider).Observe(float64(bytes))
}

// =============================================================================
// 💾 配置存储指标记录
// =============================================================================

// RecordConfigStoreOp 记录配置存储操作（init、add、update、delete、import ...）
func (c *Collector) RecordConfigStoreOp(operation string, err error) {
	if c == nil {
		return
	}
	c.configStoreOps.WithLabelValues(operation, Status(err)).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// Status 将错误转换为低基数的状态标签
func Status(err error) string {
	if err == nil {
		return "success"
	}
	if code := types.GetErrorCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}
