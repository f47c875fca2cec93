// Package tracing initialises opentracing with a zipkin reporter and provides
// span helpers for propagating trace context through message application
// properties.
package tracing

import (
	"io"
	"log"
	"os"

	opentracing "github.com/opentracing/opentracing-go"

	zipkinot "github.com/openzipkin-contrib/zipkin-go-opentracing"
	zipkin "github.com/openzipkin/zipkin-go"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"

	"github.com/asbconnect/go-asbconnect/environment"
	"github.com/asbconnect/go-asbconnect/logger"
)

const (
	prefixTracerState = "x-b3-"
	TraceID           = prefixTracerState + "traceid"
	spanID            = prefixTracerState + "spanid"
	parentSpanID      = prefixTracerState + "parentspanid"
	sampled           = prefixTracerState + "sampled"
	flags             = prefixTracerState + "flags"
)

// NewFromEnv initialises tracing and returns a closer if tracing is
// configured. If endpointVar is unset, or disableVar is set and truthy,
// tracing is left disabled and nil is returned.
func NewFromEnv(service string, host string, endpointVar, disableVar string) io.Closer {
	ze, ok := os.LookupEnv(endpointVar)
	if !ok {
		logger.Sugar.Infof("'%s' has not been provided, zipkin disabled", endpointVar)
		return nil
	}

	if disabled := environment.GetTruthy(disableVar); disabled {
		logger.Sugar.Infof("'%s' set, zipkin disabled", disableVar)
		return nil
	}
	return New(service, host, ze)
}

// New initialises tracing
// uses zipkin client tracer
func New(service string, host string, zipkinEndpoint string) io.Closer {
	// create our local service endpoint
	localEndpoint, err := zipkin.NewEndpoint(service, host)
	if err != nil {
		logger.Sugar.Panicf("unable to create zipkin local endpoint service '%s' - host '%s': %v", service, host, err)
	}

	// set up a span reporter
	zipkinLogger := log.New(os.Stdout, "zipkin", log.Ldate|log.Ltime|log.Lmicroseconds|log.Llongfile)
	reporter := zipkinhttp.NewReporter(zipkinEndpoint, zipkinhttp.Logger(zipkinLogger))

	// initialise our tracer
	nativeTracer, err := zipkin.NewTracer(
		reporter,
		zipkin.WithLocalEndpoint(localEndpoint),
		zipkin.WithSharedSpans(false),
	)
	if err != nil {
		logger.Sugar.Panicf("unable to create zipkin tracer: %v", err)
	}

	// use zipkin-go-opentracing to wrap our tracer
	tracer := zipkinot.Wrap(nativeTracer)
	opentracing.SetGlobalTracer(tracer)

	return reporter
}
