package vcluster

import (
	"context"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/elastic/elastic-transport-go/transport"
)

// Product is the minimal transport.ProductRegistration paired with a
// VirtualCluster: it recognizes the harness's reserved ping/sniff paths and
// treats any 2xx as a successful call, the way a bare-bones test product
// would (§4.7).
type Product struct {
	cluster *VirtualCluster
}

// NewProduct wraps cluster in a transport.ProductRegistration.
func NewProduct(cluster *VirtualCluster) *Product { return &Product{cluster: cluster} }

func (p *Product) Name() string    { return "vcluster" }
func (p *Product) Version() string { return "0.0.0" }

func (p *Product) SupportsPing() bool  { return true }
func (p *Product) SupportsSniff() bool { return true }

func (p *Product) PingEndpoint(node *transport.Node) (string, string) {
	return http.MethodHead, PingPath
}

func (p *Product) SniffEndpoint(node *transport.Node) (string, string) {
	return http.MethodGet, SniffPath
}

// SniffOrder preserves the pool's own ordering; the harness has no notion of
// a preferred sniff-node order.
func (p *Product) SniffOrder(nodes []*transport.Node) []*transport.Node { return nodes }

// Sniff performs one sniff call against node and parses the discovered
// node set from a JSON array of "host:port" strings (§4.7's "product-produced
// sniff payload").
func (p *Product) Sniff(ctx context.Context, invoker transport.Invoker, usingSSL bool, method, pathAndQuery string, node *transport.Node, cfg *transport.BoundConfiguration) ([]*transport.Node, error) {
	endpoint := transport.Endpoint{Method: method, PathAndQuery: pathAndQuery, Node: node}
	raw, err := invoker.Request(ctx, endpoint, cfg, nil)
	if err != nil {
		return nil, err
	}
	if raw.Body == nil {
		return nil, nil
	}
	defer raw.Body.Close()
	b, err := io.ReadAll(raw.Body)
	if err != nil {
		return nil, err
	}
	var addrs []string
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, &addrs); err != nil {
		return nil, err
	}
	return addrsToNodes(addrs, usingSSL), nil
}

// StatusCodeClassifier treats any 2xx as a known-normal response.
func (p *Product) StatusCodeClassifier(method string, statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// TryGetServerErrorReason never extracts a reason: by the time the pipeline
// calls this, the raw body has already been drained by the response builder,
// and the harness's failure bodies carry nothing the pipeline needs beyond
// the status code it already has.
func (p *Product) TryGetServerErrorReason(raw *transport.RawResponse) (string, bool) {
	return "", false
}
