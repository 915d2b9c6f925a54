package telemetry

import (
	"context"

	"github.com/BaSui01/imagegen/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName 图像生成 span 使用的 instrumentation 名称
const TracerName = "github.com/BaSui01/imagegen"

// Span 属性键
const (
	AttrProvider  = attribute.Key("imagegen.provider")
	AttrModel     = attribute.Key("imagegen.model")
	AttrConfigID  = attribute.Key("imagegen.config_id")
	AttrRequestID = attribute.Key("imagegen.request_id")
	AttrImages    = attribute.Key("imagegen.images")
	AttrErrorCode = attribute.Key("imagegen.error_code")
)

// StartGenerateSpan 为一次生成调用开启 span，使用全局 TracerProvider
func StartGenerateSpan(ctx context.Context, providerID, modelID, configID string) (context.Context, trace.Span) {
	return StartGenerateSpanWith(ctx, otel.Tracer(TracerName), providerID, modelID, configID)
}

// StartGenerateSpanWith 使用指定 tracer，见 Providers.Tracer
func StartGenerateSpanWith(ctx context.Context, tracer trace.Tracer, providerID, modelID, configID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "image.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrProvider.String(providerID),
			AttrModel.String(modelID),
			AttrConfigID.String(configID),
		),
	)
}

// EndSpan 记录结果并结束 span
func EndSpan(span trace.Span, images int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := types.GetErrorCode(err); code != "" {
			span.SetAttributes(AttrErrorCode.String(string(code)))
		}
	} else {
		span.SetAttributes(AttrImages.Int(images))
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
