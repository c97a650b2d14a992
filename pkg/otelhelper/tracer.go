// Package otelhelper provides distributed tracing bootstrap and span
// helpers for the automation core.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// Common attribute keys.
	WorkflowIDKey  = "automation.workflow.id"
	ExecutionIDKey = "automation.execution.id"
	ActionIDKey    = "automation.action.id"
	ActionTypeKey  = "automation.action.type"
	RuleIDKey      = "automation.rule.id"
	MessageIDKey   = "automation.message.id"
	DeliveryIDKey  = "automation.delivery.id"
)

// InitTracer installs the global OTLP/HTTP tracer provider. Callers must
// shut the returned provider down on exit to flush pending spans.
func InitTracer(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider, nil
}
