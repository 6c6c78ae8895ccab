package vcluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	clock "k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/elastic/elastic-transport-go/transport"
)

// PingPath and SniffPath are the distinguished paths the harness recognizes
// as ping/sniff calls; anything else is classified as a plain client call
// (§4.7).
const (
	PingPath  = "/_vcluster/ping"
	SniffPath = "/_vcluster/sniff"
)

var defaultClusterInfoBody = []byte(`{"name":"vcluster","cluster_name":"virtual","version":{"number":"0.0.0"}}`)

// VirtualCluster is the deterministic transport.Invoker described in §4.7: it
// never performs real I/O, instead resolving every ping/sniff/call against a
// RuleSet and recording per-node counters plus a mockable monotonic clock
// that rules can advance via Takes.
type VirtualCluster struct {
	rules *RuleSet
	stats *statsStore
	clk   *clocktesting.FakeClock

	seedAddrs []string
}

// NewVirtualCluster builds a harness seeded with addrs (host:port strings,
// the cluster's full membership at t0) and a fake clock starting at start.
func NewVirtualCluster(addrs []string, start time.Time) *VirtualCluster {
	return &VirtualCluster{
		rules:     NewRuleSet(),
		stats:     newStatsStore(),
		clk:       clocktesting.NewFakeClock(start),
		seedAddrs: append([]string(nil), addrs...),
	}
}

// Rules exposes the rule set for test setup.
func (c *VirtualCluster) Rules() *RuleSet { return c.rules }

// Stats reports the counters recorded for node (its transport.Node.NormalizedKey()).
func (c *VirtualCluster) Stats(node string) NodeStats { return c.stats.get(node) }

// Clock returns the harness's fake clock as a transport.Clock, suitable for
// passing to PipelineDeps/TransportConfig so dead-timeout and
// maxRetryTimeout math is driven by the same virtual time rules advance.
func (c *VirtualCluster) Clock() transport.Clock { return c.clk }

// Close releases the harness's in-memory counter store.
func (c *VirtualCluster) Close() error { return c.stats.close() }

// SeedNodes builds the initial transport.Node set from the harness's seed
// addresses, for constructing a pool.NodePool.
func (c *VirtualCluster) SeedNodes(usingSSL bool) []*transport.Node {
	return addrsToNodes(c.seedAddrs, usingSSL)
}

// Reshape replaces the harness's notion of full cluster membership, used by
// a Sniff rule's ReturnBody when nil (the default sniff payload reflects
// whatever the harness was last told the cluster looks like).
func (c *VirtualCluster) Reshape(addrs []string) {
	c.seedAddrs = append([]string(nil), addrs...)
}

func addrsToNodes(addrs []string, usingSSL bool) []*transport.Node {
	scheme := "http"
	if usingSSL {
		scheme = "https"
	}
	nodes := make([]*transport.Node, 0, len(addrs))
	for _, a := range addrs {
		u, err := url.Parse(scheme + "://" + a)
		if err != nil {
			continue
		}
		nodes = append(nodes, transport.NewNode(u))
	}
	return nodes
}

// Request implements transport.Invoker by resolving the matching rule for
// this endpoint and synthesizing a RawResponse (or connection-level error)
// from it, per §4.7's matching/effect algorithm.
func (c *VirtualCluster) Request(ctx context.Context, endpoint transport.Endpoint, cfg *transport.BoundConfiguration, body io.Reader) (*transport.RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port := 0
	nodeKey := ""
	if endpoint.Node != nil {
		nodeKey = endpoint.Node.NormalizedKey()
		port, _ = strconv.Atoi(endpoint.Node.URI().Port())
	}

	kind := classify(endpoint.PathAndQuery)
	switch kind {
	case KindPing:
		c.stats.increment(nodeKey, "pinged")
	case KindSniff:
		c.stats.increment(nodeKey, "sniffed")
	default:
		c.stats.increment(nodeKey, "called")
	}

	rule := c.rules.Match(kind, port, endpoint.PathAndQuery)
	if rule == nil {
		c.stats.increment(nodeKey, "successes")
		return c.defaultSuccess(kind), nil
	}
	rule.recordExecution()

	if rule.Takes > 0 {
		budget := cfg.RequestTimeout
		advance := rule.Takes
		if budget > 0 && advance > budget {
			advance = budget
		}
		c.clk.Step(advance)
		if budget > 0 && rule.Takes > budget {
			c.stats.increment(nodeKey, "failures")
			return nil, transport.NewTimeoutError(fmt.Errorf("vcluster: rule on %s took %s, exceeding request timeout %s", endpoint.URI(), rule.Takes, budget))
		}
	}

	if rule.Succeeds {
		c.stats.increment(nodeKey, "successes")
		return c.successResponse(kind, rule), nil
	}

	c.stats.increment(nodeKey, "failures")
	if rule.Raises != nil {
		return nil, rule.Raises
	}
	status := rule.Status
	if status == 0 {
		status = 500
	}
	if status >= 200 && status < 300 {
		status = 502 // never let a misconfigured "success" status look healthy
	}
	return newFasthttpResponse(status, "application/json", []byte(`{"error":"vcluster configured failure"}`)), nil
}

func (c *VirtualCluster) defaultSuccess(kind Kind) *transport.RawResponse {
	var body []byte
	switch kind {
	case KindCall:
		body = defaultClusterInfoBody
	case KindSniff:
		body = c.defaultSniffPayload()
	}
	return newFasthttpResponse(200, "application/json", body)
}

func (c *VirtualCluster) successResponse(kind Kind, rule *Rule) *transport.RawResponse {
	body := rule.ReturnBody
	if body == nil {
		switch kind {
		case KindCall:
			body = defaultClusterInfoBody
		case KindSniff:
			body = c.defaultSniffPayload()
		}
	}
	return newFasthttpResponse(200, "application/json", body)
}

// newFasthttpResponse shapes one RawResponse through a pooled fasthttp
// in-memory Response value object rather than hand-assembling the struct
// fields individually: status, content-type, and body all flow through the
// same object fasthttp itself would populate off the wire.
func newFasthttpResponse(status int, mime string, body []byte) *transport.RawResponse {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	resp.SetStatusCode(status)
	resp.Header.SetContentType(mime)
	if body != nil {
		resp.SetBody(body)
	}

	// fasthttp pools its buffers on Release, so the body must be copied out
	// before returning.
	var rc io.ReadCloser
	if b := resp.Body(); len(b) > 0 {
		out := make([]byte, len(b))
		copy(out, b)
		rc = io.NopCloser(bytes.NewReader(out))
	}

	return &transport.RawResponse{
		StatusCode:    resp.StatusCode(),
		HasStatusCode: true,
		MimeType:      string(resp.Header.ContentType()),
		Body:          rc,
	}
}

func (c *VirtualCluster) defaultSniffPayload() []byte {
	b, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(c.seedAddrs)
	return b
}

func classify(path string) Kind {
	switch path {
	case PingPath:
		return KindPing
	case SniffPath:
		return KindSniff
	default:
		return KindCall
	}
}

// ResponseFactory implements transport.Invoker.ResponseFactory; the harness
// itself doubles as the factory used on the NoNodesAttempted path.
func (c *VirtualCluster) ResponseFactory() transport.ResponseFactory { return c }

// Create implements transport.ResponseFactory for the synthetic no-attempt
// path (§4.5 FinalizeResponse).
func (c *VirtualCluster) Create(endpoint transport.Endpoint, cfg *transport.BoundConfiguration, err error, raw *transport.RawResponse) *transport.ApiCallDetails {
	d := &transport.ApiCallDetails{URI: endpoint.URI(), Method: endpoint.Method, OriginalException: err}
	if raw != nil {
		d.HTTPStatusCode = raw.StatusCode
		d.HasStatusCode = raw.HasStatusCode
		d.ResponseMimeType = raw.MimeType
	}
	return d
}

var _ clock.Clock = (*clocktesting.FakeClock)(nil)
