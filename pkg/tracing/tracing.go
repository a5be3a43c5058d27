// Package tracing exports OpenTelemetry spans for agent runs and tool
// invocations over OTLP.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/germanamz/tabletalk/pkg/agent"
	"github.com/germanamz/tabletalk/pkg/agentctx"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

// Exporter names.
const (
	ExporterNone = "none"
	ExporterGRPC = "grpc"
	ExporterHTTP = "http"
)

const instrumentation = "github.com/germanamz/tabletalk"

// Config configures span export.
type Config struct {
	Exporter    string            `yaml:"exporter"` // "none" (default), "grpc" or "http"
	Endpoint    string            `yaml:"endpoint"` // OTLP endpoint (e.g. "localhost:4317")
	Insecure    bool              `yaml:"insecure"`
	ServiceName string            `yaml:"service_name"` // default "tabletalk"
	Headers     map[string]string `yaml:"headers"`
}

// Validate checks the exporter settings.
func (c Config) Validate() error {
	switch c.Exporter {
	case "", ExporterNone:
		return nil
	case ExporterGRPC, ExporterHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("tracing: endpoint is required for exporter %q", c.Exporter)
		}
		return nil
	default:
		return fmt.Errorf("tracing: unknown exporter %q", c.Exporter)
	}
}

// Provider owns the tracer provider and hands out the tracer used by the
// middleware and tool wrappers.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// New builds a Provider from cfg. With exporter "none" spans are dropped.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(instrumentation)}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tabletalk"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case ExporterHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return NewFromSDK(tp), nil
}

// NewFromSDK wraps an existing SDK tracer provider. Shutdown shuts it down.
func NewFromSDK(tp *sdktrace.TracerProvider) *Provider {
	return &Provider{sdk: tp, tracer: tp.Tracer(instrumentation)}
}

// Tracer returns the tracer spans are started on.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	slog.Info("tracing shutting down")
	return p.sdk.Shutdown(ctx)
}

// Middleware records one span per agent run.
func Middleware(tracer trace.Tracer) agent.Middleware {
	return func(next agent.Runner) agent.Runner {
		return agent.RunnerFunc(func(ctx context.Context, req agent.Request) (agent.Result, error) {
			ctx, span := tracer.Start(ctx, "agent.run",
				trace.WithAttributes(
					attribute.String("tabletalk.session_id", req.SessionID),
					attribute.Bool("tabletalk.resume", req.Resume),
				),
			)
			defer span.End()

			res, err := next.Run(ctx, req)

			span.SetAttributes(attribute.Int("tabletalk.tool_calls", res.ToolCalls))
			if res.PersistErr != nil {
				span.AddEvent("persist_failed", trace.WithAttributes(attribute.String("error", res.PersistErr.Error())))
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return res, err
			}

			span.SetStatus(codes.Ok, "")
			return res, nil
		})
	}
}

// WrapTools returns a copy of tb whose handlers each run inside a span.
// Validation failures happen before the handler and are recorded by the
// surrounding run span instead.
func WrapTools(tb *toolbox.ToolBox, tracer trace.Tracer) *toolbox.ToolBox {
	wrapped := toolbox.New()
	for _, t := range tb.Tools() {
		wrapped.MustRegister(wrapTool(t, tracer))
	}
	return wrapped
}

func wrapTool(t toolbox.Tool, tracer trace.Tracer) toolbox.Tool {
	handler := t.Handler
	name := t.Name

	t.Handler = func(ctx context.Context, args toolbox.Args) (any, error) {
		ctx, span := tracer.Start(ctx, "tool."+name,
			trace.WithAttributes(
				attribute.String("tabletalk.tool.name", name),
				attribute.String("tabletalk.agent", agentctx.AgentName(ctx)),
				attribute.String("tabletalk.session_id", agentctx.SessionID(ctx)),
			),
		)
		defer span.End()

		out, err := handler(ctx, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return out, err
		}

		span.SetStatus(codes.Ok, "")
		return out, nil
	}
	return t
}
