package internal

import (
	"context"
	"strconv"
	"sync"
)

// Telemetry hooks for the request pipeline. The default emitter drops everything; the
// server or a test registers a real one with RegisterTelemetryEmitter.

// TelemetryEmitter receives one measurement.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter replaces the emitter. Passing nil restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitLatency records the handling time of one request in milliseconds.
// name: "jsonadm_request_latency_ms" with labels {"method", "resource", "status"}
func EmitLatency(ctx context.Context, method, resource string, status int, ms int64) {
	emit(ctx, "jsonadm_request_latency_ms", map[string]string{
		"method":   method,
		"resource": resource,
		"status":   strconv.Itoa(status),
	}, ms)
}

// EmitLookupCount records how many entities one include domain resolved to.
// name: "jsonadm_include_lookup_count" with label {"domain"}
func EmitLookupCount(ctx context.Context, domain string, n int) {
	emit(ctx, "jsonadm_include_lookup_count", map[string]string{"domain": domain}, int64(n))
}
