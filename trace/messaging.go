package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// MessagingMeta 描述标准化的消息属性
type MessagingMeta struct {
	System      string
	Destination string
	Operation   string
}

// Inject 将当前 Span 上下文注入到 headers（W3C traceparent）
func Inject(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// Extract 从 headers 中提取 Span 上下文
func Extract(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

func normalizeTracer(tracer oteltrace.Tracer) oteltrace.Tracer {
	if tracer == nil {
		return otel.Tracer("nexus.trace")
	}
	return tracer
}

func messagingAttributes(meta MessagingMeta) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, 3)
	if meta.System != "" {
		out = append(out, attribute.String(AttrMessagingSystem, meta.System))
	}
	if meta.Destination != "" {
		out = append(out, attribute.String(AttrMessagingDestination, meta.Destination))
	}
	if meta.Operation != "" {
		out = append(out, attribute.String(AttrMessagingOperation, meta.Operation))
	}
	return out
}

// StartProducerSpan 启动一个生产者 Span，并将上下文注入到返回的 headers
func StartProducerSpan(
	ctx context.Context,
	tracer oteltrace.Tracer,
	spanName string,
	meta MessagingMeta,
) (context.Context, oteltrace.Span, map[string]string) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer = normalizeTracer(tracer)

	spanCtx, span := tracer.Start(ctx, spanName, oteltrace.WithSpanKind(oteltrace.SpanKindProducer))
	span.SetAttributes(messagingAttributes(meta)...)

	headers := map[string]string{}
	Inject(spanCtx, headers)
	return spanCtx, span, headers
}

// StartConsumerSpanFromHeaders 从传入的 headers 启动一个消费者 Span
//
// 上游 Span 以 Link 方式关联，适合一对多的广播投递。
func StartConsumerSpanFromHeaders(
	ctx context.Context,
	tracer oteltrace.Tracer,
	spanName string,
	headers map[string]string,
	meta MessagingMeta,
) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer = normalizeTracer(tracer)

	startOpts := []oteltrace.SpanStartOption{oteltrace.WithSpanKind(oteltrace.SpanKindConsumer)}
	if len(headers) > 0 {
		extracted := Extract(ctx, headers)
		if remoteSC := oteltrace.SpanContextFromContext(extracted); remoteSC.IsValid() {
			startOpts = append(startOpts, oteltrace.WithLinks(oteltrace.Link{SpanContext: remoteSC}))
		}
	}

	spanCtx, span := tracer.Start(ctx, spanName, startOpts...)
	span.SetAttributes(messagingAttributes(meta)...)
	return spanCtx, span
}

// MarkSpanError 当 err 不为 nil 时记录并将 Span 标记为错误
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
