// Package tracer sets up the global opentracing tracer backed by jaeger.
package tracer

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Config jaeger 配置
type Config struct {
	ServiceName string
	AgentHost   string // host:port of the jaeger agent, empty disables reporting
	SampleRate  float64
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewJaegerTracer creates a tracer and installs it as the opentracing global tracer.
// With an empty AgentHost the noop tracer stays installed and a noop closer is returned.
func NewJaegerTracer(cfg Config) (opentracing.Tracer, io.Closer, error) {
	if cfg.AgentHost == "" {
		return opentracing.GlobalTracer(), nopCloser{}, nil
	}

	samplerType := jaeger.SamplerTypeProbabilistic
	if cfg.SampleRate >= 1 {
		samplerType = jaeger.SamplerTypeConst
	}

	c := &jaegercfg.Configuration{
		ServiceName: cfg.ServiceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  samplerType,
			Param: cfg.SampleRate,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: cfg.AgentHost,
		},
	}
	t, closer, err := c.NewTracer()
	if err != nil {
		return nil, nil, err
	}
	opentracing.SetGlobalTracer(t)
	return t, closer, nil
}
