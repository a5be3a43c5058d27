package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/germanamz/tabletalk/pkg/agent"
	"github.com/germanamz/tabletalk/pkg/providers/scripted"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

func newRecorded(t *testing.T) (*Provider, *tracetest.SpanRecorder) {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	p := NewFromSDK(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, rec
}

func attrs(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func echoBox() *toolbox.ToolBox {
	return toolbox.New().MustRegister(
		toolbox.Tool{
			Name:   "echo",
			Schema: toolbox.Schema{{Name: "message", Type: toolbox.TypeString, Required: true}},
			Handler: func(_ context.Context, args toolbox.Args) (any, error) {
				return args.String("message"), nil
			},
		},
		toolbox.Tool{
			Name: "fail",
			Handler: func(context.Context, toolbox.Args) (any, error) {
				return nil, errors.New("no luck")
			},
		},
	)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  string
	}{
		{name: "empty", cfg: Config{}},
		{name: "none", cfg: Config{Exporter: ExporterNone}},
		{name: "grpc", cfg: Config{Exporter: ExporterGRPC, Endpoint: "localhost:4317"}},
		{name: "http without endpoint", cfg: Config{Exporter: ExporterHTTP}, err: `endpoint is required for exporter "http"`},
		{name: "unknown", cfg: Config{Exporter: "zipkin"}, err: `unknown exporter "zipkin"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestNewNone(t *testing.T) {
	p, err := New(context.Background(), Config{})

	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewGRPC(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed.
	p, err := New(context.Background(), Config{Exporter: ExporterGRPC, Endpoint: "localhost:4317", Insecure: true})

	require.NoError(t, err)
	assert.NotNil(t, p.sdk)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestShutdownNilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestMiddlewareRecordsRunSpan(t *testing.T) {
	p, rec := newRecorded(t)

	model := scripted.New(scripted.Call("echo", map[string]any{"message": "hi"}), scripted.Reply("done"))
	a, err := agent.New(agent.Config{
		Name:       "shop",
		Completer:  model,
		Tools:      WrapTools(echoBox(), p.Tracer()),
		Middleware: []agent.Middleware{Middleware(p.Tracer())},
	})
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "s-1", "echo hi")
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	tool, run := spans[0], spans[1]
	assert.Equal(t, "tool.echo", tool.Name())
	assert.Equal(t, "agent.run", run.Name())
	assert.Equal(t, run.SpanContext().SpanID(), tool.Parent().SpanID())

	toolAttrs := attrs(tool.Attributes())
	assert.Equal(t, "shop", toolAttrs["tabletalk.agent"].AsString())
	assert.Equal(t, "s-1", toolAttrs["tabletalk.session_id"].AsString())

	runAttrs := attrs(run.Attributes())
	assert.Equal(t, "s-1", runAttrs["tabletalk.session_id"].AsString())
	assert.Equal(t, int64(1), runAttrs["tabletalk.tool_calls"].AsInt64())
	assert.Equal(t, codes.Ok, run.Status().Code)
}

func TestMiddlewareRecordsRunError(t *testing.T) {
	p, rec := newRecorded(t)

	a, err := agent.New(agent.Config{
		Completer:  scripted.New(scripted.Fail(errors.New("down"))),
		Middleware: []agent.Middleware{Middleware(p.Tracer())},
	})
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "", "hi")
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "down")
}

func TestWrapToolsRecordsHandlerError(t *testing.T) {
	p, rec := newRecorded(t)
	tb := WrapTools(echoBox(), p.Tracer())

	_, err := tb.Invoke(context.Background(), "fail", nil)

	var exec *toolbox.ToolExecutionError
	require.ErrorAs(t, err, &exec)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tool.fail", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestWrapToolsKeepsCatalog(t *testing.T) {
	p, _ := newRecorded(t)
	orig := echoBox()

	wrapped := WrapTools(orig, p.Tracer())

	assert.Equal(t, orig.Names(), wrapped.Names())
	assert.Equal(t, orig.Describe(), wrapped.Describe())
}
