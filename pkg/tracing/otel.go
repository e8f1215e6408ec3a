// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartTaskSpan 开始任务跟进 span（覆盖整个轮询周期）
func StartTaskSpan(ctx context.Context, promptID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("aigc-platform")
	return tracer.Start(ctx, "task.watch",
		trace.WithAttributes(
			attribute.String("task.prompt_id", promptID),
		),
	)
}

// StartPlatformSpan 开始一次平台出站调用 span
func StartPlatformSpan(ctx context.Context, platform, op string) (context.Context, trace.Span) {
	tracer := otel.Tracer("aigc-platform")
	return tracer.Start(ctx, "platform."+op,
		trace.WithAttributes(
			attribute.String("platform.type", platform),
			attribute.String("platform.op", op),
		),
	)
}

// StartLedgerSpan 开始一次账本操作 span（debit/refund）
func StartLedgerSpan(ctx context.Context, op, userID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("aigc-platform")
	return tracer.Start(ctx, "credit."+op,
		trace.WithAttributes(
			attribute.String("credit.op", op),
			attribute.String("credit.user_id", userID),
		),
	)
}
