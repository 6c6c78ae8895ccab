package transport

import "context"

// ProductRegistration is the external collaborator supplying
// product-specific policy: endpoint construction for sniff/ping, status-code
// classification, and server-error-reason extraction (§1, out of scope —
// only its interface matters to the core).
type ProductRegistration interface {
	// Name and Version identify the product for the user-agent string and
	// observability span attributes (§6).
	Name() string
	Version() string

	// SupportsPing/SupportsSniff gate whether the pipeline ever issues a
	// ping or sniff call, independent of pool/config capability flags.
	SupportsPing() bool
	SupportsSniff() bool

	// PingEndpoint builds the (method, path) pair for a liveness probe
	// against node.
	PingEndpoint(node *Node) (method, pathAndQuery string)

	// SniffEndpoint builds the (method, path) pair for a topology-discovery
	// call against node.
	SniffEndpoint(node *Node) (method, pathAndQuery string)

	// SniffOrder returns the candidate nodes in the order sniff should try
	// them.
	SniffOrder(nodes []*Node) []*Node

	// Sniff performs one sniff attempt against endpoint and returns the
	// discovered node set on success.
	Sniff(ctx context.Context, invoker Invoker, usingSSL bool, method, pathAndQuery string, node *Node, cfg *BoundConfiguration) ([]*Node, error)

	// StatusCodeClassifier decides whether a status code is a success for
	// method, when the generic/allowed-status-code rules do not already
	// resolve it (§4.4 step 1).
	StatusCodeClassifier(method string, statusCode int) bool

	// TryGetServerErrorReason extracts a human-readable reason from a
	// failing raw response body, when the product's wire format carries one
	// (§4.5 FinalizeResponse).
	TryGetServerErrorReason(raw *RawResponse) (reason string, ok bool)
}
