package transport

import (
	"context"
	"io"
)

// RawResponse is what an Invoker hands back after (attempting) one HTTP
// turnaround (§3).
type RawResponse struct {
	StatusCode    int // 0 when no status arrived (connect/timeout failure)
	HasStatusCode bool
	Headers       map[string][]string
	Body          io.ReadCloser
	MimeType      string
	ContentLength int64

	OriginalError error

	TCPStats        *TCPStats
	ThreadPoolStats *ThreadPoolStats
}

// TCPStats and ThreadPoolStats are opaque diagnostic bags the Invoker may
// populate when EnableTCPStats/EnableThreadPoolStats are set (§3, §4.2).
type TCPStats struct {
	NumberOfActiveConnections int
	NumberOfIdleConnections   int
}

type ThreadPoolStats struct {
	ThreadsInUse int
	QueueDepth   int
}

// Invoker is the external capability that performs one HTTP call. The core
// never does socket I/O, TLS, proxying, or connection pooling itself (§1,
// §4.3): it only consumes this interface, and transport/vcluster provides a
// deterministic stand-in for tests.
type Invoker interface {
	// Request executes one HTTP call against endpoint.
	Request(ctx context.Context, endpoint Endpoint, cfg *BoundConfiguration, body io.Reader) (*RawResponse, error)

	// ResponseFactory builds a typed response from a RawResponse (or from a
	// synthesized error path where no HTTP turn-around completed), used by
	// FinalizeResponse (§4.3, §4.5).
	ResponseFactory() ResponseFactory
}

// ResponseFactory mirrors invoker.responseFactory.create<T> from §4.3: it
// is how the pipeline materializes a typed response on a path where the
// Invoker never got a RawResponse at all (e.g. NoNodesAttempted).
type ResponseFactory interface {
	Create(endpoint Endpoint, cfg *BoundConfiguration, err error, raw *RawResponse) *ApiCallDetails
}
