//go:build !otelotlp

// Package otelobs wires optional OpenTelemetry tracing around the HTTP
// surface. The default build is a no-op; build with -tags otelotlp to export
// spans over OTLP.
package otelobs

import (
	"context"
	"net/http"
)

// InitTracer is a no-op by default so plain builds stay lightweight.
func InitTracer(serviceName string) func(context.Context) error {
	return func(context.Context) error { return nil }
}

// WrapHTTPHandler returns h unchanged in the default build.
func WrapHTTPHandler(serviceName string, h http.Handler) http.Handler { return h }
