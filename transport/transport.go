package transport

import (
	"context"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// TransportConfig bundles everything a Transport needs for its lifetime: the
// pool of nodes to failover across, the product-specific policy, the Invoker
// that actually performs HTTP calls, and the ambient collaborators (clock,
// metrics registry, tracer). Global is the configuration every request binds
// against unless overridden per-call.
type TransportConfig struct {
	Global  GlobalConfiguration
	Pool    NodePool
	Product ProductRegistration
	Invoker Invoker

	Clock    Clock
	Registry prometheus.Registerer
	Tracer   Tracer
	Version  string

	OnRequestCompleted func(*ApiCallDetails)
}

// Transport is the long-lived, concurrency-safe entry point (§1, §4.6): one
// value is constructed per logical cluster connection and reused across
// every request issued against it.
type Transport struct {
	global  GlobalConfiguration
	pool    NodePool
	product ProductRegistration
	invoker Invoker

	clock      Clock
	metrics    *Metrics
	bootstrap  *bootstrapSemaphore
	sniffGroup singleflight.Group
	tracer     Tracer
	version    string

	onRequestCompleted func(*ApiCallDetails)

	// boundCache memoizes BoundConfiguration for every *immutable*
	// RequestConfiguration overlay seen (§4.2 / §8 R2). Keyed by pointer
	// identity: callers that mark an overlay Immutable() are expected to
	// reuse the same value across calls to benefit from this. It is a plain
	// map: entries are held for the Transport's lifetime and never evicted.
	boundMu    sync.Mutex
	boundCache map[*RequestConfiguration]*BoundConfiguration
}

// NewTransport constructs a Transport ready to serve requests.
func NewTransport(cfg TransportConfig) *Transport {
	clk := cfg.Clock
	if clk == nil {
		clk = RealClock
	}
	return &Transport{
		global:             cfg.Global,
		pool:               cfg.Pool,
		product:            cfg.Product,
		invoker:            cfg.Invoker,
		clock:              clk,
		metrics:            NewMetrics(cfg.Registry),
		bootstrap:          newBootstrapSemaphore(),
		tracer:             cfg.Tracer,
		version:            cfg.Version,
		onRequestCompleted: cfg.OnRequestCompleted,
		boundCache:         make(map[*RequestConfiguration]*BoundConfiguration),
	}
}

// bind resolves the effective BoundConfiguration for one request, reusing a
// cached bind when overlay was marked Immutable() and has been seen before.
func (t *Transport) bind(overlay *RequestConfiguration) *BoundConfiguration {
	if overlay == nil {
		return Bind(t.global, nil)
	}
	if !overlay.immutable {
		return Bind(t.global, overlay)
	}
	t.boundMu.Lock()
	defer t.boundMu.Unlock()
	if b, ok := t.boundCache[overlay]; ok {
		return b
	}
	b := Bind(t.global, overlay)
	t.boundCache[overlay] = b
	return b
}

// Perform drives one logical request through the pool to completion. shape
// and targetType select how the response body is materialized (§4.4);
// overlay may be nil to use purely global configuration.
func (t *Transport) Perform(ctx context.Context, method, pathAndQuery string, body io.Reader, overlay *RequestConfiguration, shape ResponseShape, targetType interface{}) (*BuiltResponse, error) {
	bound := t.bind(overlay)
	pipeline := NewRequestPipeline(PipelineDeps{
		Config:             bound,
		Pool:               t.pool,
		Product:            t.product,
		Invoker:            t.invoker,
		Clock:              t.clock,
		Metrics:            t.metrics,
		Bootstrap:          t.bootstrap,
		SniffGroup:         &t.sniffGroup,
		Tracer:             t.tracer,
		TransportVersion:   t.version,
		OnRequestCompleted: t.onRequestCompleted,
	})
	return pipeline.Execute(ctx, method, pathAndQuery, body, shape, targetType)
}

// RequestString performs a request and returns the body as a string (§4.4
// ShapeString), the way a thin string-returning API client would.
func (t *Transport) RequestString(ctx context.Context, method, pathAndQuery string, body io.Reader, overlay *RequestConfiguration) (*BuiltResponse, error) {
	return t.Perform(ctx, method, pathAndQuery, body, overlay, ShapeString, nil)
}

// RequestBytes performs a request and returns the raw body bytes.
func (t *Transport) RequestBytes(ctx context.Context, method, pathAndQuery string, body io.Reader, overlay *RequestConfiguration) (*BuiltResponse, error) {
	return t.Perform(ctx, method, pathAndQuery, body, overlay, ShapeBytes, nil)
}

// RequestVoid performs a request, draining but discarding the body.
func (t *Transport) RequestVoid(ctx context.Context, method, pathAndQuery string, body io.Reader, overlay *RequestConfiguration) (*BuiltResponse, error) {
	return t.Perform(ctx, method, pathAndQuery, body, overlay, ShapeVoid, nil)
}

// RequestStream performs a request and leaves the body open for the caller
// to read incrementally, unless DisableDirectStreaming forces buffering.
func (t *Transport) RequestStream(ctx context.Context, method, pathAndQuery string, body io.Reader, overlay *RequestConfiguration) (*BuiltResponse, error) {
	return t.Perform(ctx, method, pathAndQuery, body, overlay, ShapeStream, nil)
}

// RequestDynamic performs a request and returns a DynamicResponse for ad hoc
// gjson-style path access.
func (t *Transport) RequestDynamic(ctx context.Context, method, pathAndQuery string, body io.Reader, overlay *RequestConfiguration) (*BuiltResponse, error) {
	return t.Perform(ctx, method, pathAndQuery, body, overlay, ShapeDynamic, nil)
}

// RequestTyped performs a request and deserializes the body into target's
// shape (typically a pointer to a struct), via the registered
// ResponseBuilders or the generic JSON fallback.
func (t *Transport) RequestTyped(ctx context.Context, method, pathAndQuery string, body io.Reader, overlay *RequestConfiguration, target interface{}) (*BuiltResponse, error) {
	return t.Perform(ctx, method, pathAndQuery, body, overlay, ShapeTyped, target)
}

// Pool exposes the node pool so callers can inspect or explicitly reseed it.
func (t *Transport) Pool() NodePool { return t.pool }
