package tracing

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	opentracinglog "github.com/opentracing/opentracing-go/log"

	"github.com/asbconnect/go-asbconnect/logger"
)

// Span hides the opentracing-go package from callers, making it easier to
// move to opentelemetry later.
type Span struct {
	span opentracing.Span
}

func (s *Span) Close() {
	if s.span != nil {
		s.span.Finish()
		s.span = nil
	}
}

func (s *Span) SetTag(key string, value any) {
	if s.span != nil {
		s.span.SetTag(key, value)
	}
}

func (s *Span) LogField(key string, value any) {
	if s.span == nil {
		return
	}
	switch v := value.(type) {
	case bool:
		s.span.LogFields(opentracinglog.Bool(key, v))
	case error:
		s.span.LogFields(opentracinglog.Error(v))
	case int:
		s.span.LogFields(opentracinglog.Int(key, v))
	case int32:
		s.span.LogFields(opentracinglog.Int32(key, v))
	case int64:
		s.span.LogFields(opentracinglog.Int64(key, v))
	case uint32:
		s.span.LogFields(opentracinglog.Uint32(key, v))
	case uint64:
		s.span.LogFields(opentracinglog.Uint64(key, v))
	case float32:
		s.span.LogFields(opentracinglog.Float32(key, v))
	case float64:
		s.span.LogFields(opentracinglog.Float64(key, v))
	case string:
		s.span.LogFields(opentracinglog.String(key, v))
	}
}

func valueFromCarrier(carrier opentracing.TextMapCarrier, key string) string {
	value, found := carrier[key]
	if !found || value == "" {
		return ""
	}
	return value
}

func (s *Span) TraceID() string {
	if s.span == nil {
		return ""
	}
	carrier := opentracing.TextMapCarrier{}
	err := opentracing.GlobalTracer().Inject(s.span.Context(), opentracing.TextMap, carrier)
	if err != nil {
		return ""
	}

	return valueFromCarrier(carrier, TraceID)
}

// Attributes returns the span context as a string map, suitable for stashing
// in message application properties.
func (s *Span) Attributes(log logger.Logger) map[string]any {
	var attributes = make(map[string]any)
	if s.span == nil {
		return attributes
	}

	carrier := opentracing.TextMapCarrier{}
	err := opentracing.GlobalTracer().Inject(s.span.Context(), opentracing.TextMap, carrier)
	if err != nil {
		log.Infof("Attributes(): Unable to inject span context: %v", err)
		return attributes
	}
	for k, v := range carrier {
		attributes[k] = v
	}
	return attributes
}

// NewSpanWithAttributes creates a span as a child of any span context found in
// the supplied attributes map - such as the application properties of a
// received message. Attributes that are not tracing headers are ignored by the
// extractor so no pre-filtering is required.
func NewSpanWithAttributes(ctx context.Context, name string, log logger.Logger, attributes map[string]any) (*Span, context.Context) {
	var opts = []opentracing.StartSpanOption{}
	carrier := opentracing.TextMapCarrier{}
	for k, v := range attributes {
		// Tracing properties will be strings
		value, ok := v.(string)
		if ok {
			carrier.Set(k, value)
		}
	}
	spanCtx, err := opentracing.GlobalTracer().Extract(opentracing.TextMap, carrier)
	if err != nil {
		log.Debugf("NewSpanWithAttributes(): Unable to extract span context: %v", err)
	} else {
		opts = append(opts, opentracing.ChildOf(spanCtx))
	}
	span := opentracing.StartSpan(name, opts...)
	ctx = opentracing.ContextWithSpan(ctx, span)
	return &Span{span: span}, ctx
}

func StartSpanFromContext(ctx context.Context, log logger.Logger, name string) (*Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, name)
	return &Span{span: span}, ctx
}
