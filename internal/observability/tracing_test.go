package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestValidateExporter(t *testing.T) {
	for _, name := range []string{"", "none", "STDOUT", " otlp "} {
		if err := ValidateExporter(name); err != nil {
			t.Fatalf("ValidateExporter(%q) error: %v", name, err)
		}
	}
	if err := ValidateExporter("zipkin"); err == nil {
		t.Fatalf("ValidateExporter accepted an unknown exporter")
	}
}

func TestInitTracingNone(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	_, span := StartSpan(context.Background(), "session.Run")
	if span.SpanContext().IsValid() {
		t.Fatalf("span recorded with export off")
	}
	span.End()
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("InitTracing accepted an unknown exporter")
	}
}

func TestInitTracingStdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: "stdout", SampleRatio: 1, Output: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing error: %v", err)
	}
	_, span := StartSpan(context.Background(), "session.Install", attribute.Int("points", 3))
	EndSpan(span, nil)
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if out := buf.String(); !strings.Contains(out, "session.Install") || !strings.Contains(out, serviceName) {
		t.Fatalf("exported spans = %q, want session.Install from %s", out, serviceName)
	}
}

func TestStartAndEndSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := StartSpan(context.Background(), "pipeline.ok", attribute.Int("samples", 3))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "pipeline.failed")
	EndSpan(failed, errors.New("degenerate sample"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Unset {
		t.Fatalf("ok span status = %v, want Unset", spans[0].Status())
	}
	if got := spans[1].Status(); got.Code != codes.Error || got.Description != "degenerate sample" {
		t.Fatalf("failed span status = %+v, want Error", got)
	}
	if len(spans[1].Events()) != 1 {
		t.Fatalf("failed span events = %d, want 1 recorded error", len(spans[1].Events()))
	}
}
