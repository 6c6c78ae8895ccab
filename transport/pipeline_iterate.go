package transport

import (
	"context"
	"io"
	"sync/atomic"
)

// nodeIterator walks the pool's view, restarting on a sniff-requested
// refresh up to maxViewRestarts times, always bounded by depletedRetries
// (§4.5 nextNode).
type nodeIterator struct {
	p    *RequestPipeline
	view NodeView
}

func (p *RequestPipeline) newNodeIterator() *nodeIterator {
	return &nodeIterator{p: p, view: p.pool.View(p.auditor)}
}

// next returns the next candidate node, or (nil, false) when iteration
// should stop (either the view and all permitted restarts are exhausted, or
// depletedRetries has become true).
func (it *nodeIterator) next() (*Node, bool) {
	for {
		if it.p.depletedRetries() {
			return nil, false
		}
		n, ok := it.view.Next()
		if ok {
			return n, true
		}
		if !it.p.refreshRequested || it.p.viewRestarts >= maxViewRestarts {
			return nil, false
		}
		it.p.refreshRequested = false
		it.p.viewRestarts++
		it.view = it.p.pool.View(it.p.auditor)
	}
}

// iterate runs the Iterate -> PrePerNode -> PerNodeCall loop of §4.5's state
// machine summary until a terminal state is reached, then calls finalize. A
// cancellation or a BadAuthentication response returns its error directly,
// without finalize.
func (p *RequestPipeline) iterate(ctx context.Context, method, pathAndQuery string, body io.Reader, shape ResponseShape, targetType interface{}) (*BuiltResponse, Endpoint, error) {
	var lastEndpoint Endpoint

	// Single-node fast path: bypass ping/sniff entirely when the pool hands
	// back exactly one usable node (§4.5).
	if single, ok := p.singleUsableNode(); ok {
		endpoint := Endpoint{Method: method, PathAndQuery: pathAndQuery, Node: single}
		atomic.AddInt32(&p.attemptedNodes, 1)
		built, err := p.callAndClassify(ctx, endpoint, body, shape, targetType)
		if err != nil && isStalePooledConnection(err) {
			built, err = p.callAndClassify(ctx, endpoint, body, shape, targetType)
		}
		if built != nil && built.Details.SuccessOrKnownError(p.productKnowsAsNormal(endpoint, built.Details)) {
			p.markAlive(single)
		} else {
			p.markDead(single)
		}
		out, ferr := p.finalize(ctx, endpoint, built, err)
		return out, endpoint, ferr
	}

	it := p.newNodeIterator()
	for {
		if err := ctx.Err(); err != nil {
			p.auditor.Append(CancellationRequested, nil, pathAndQuery, err)
			return nil, lastEndpoint, p.wrapUnexpected(err)
		}
		node, ok := it.next()
		if !ok {
			break
		}
		atomic.AddInt32(&p.attemptedNodes, 1)
		endpoint := Endpoint{Method: method, PathAndQuery: pathAndQuery, Node: node}
		lastEndpoint = endpoint

		if p.sniffsOnStaleCluster() && p.staleClusterState() {
			p.sniffOnStaleCluster(ctx)
		}

		if p.product != nil && p.product.SupportsPing() && !p.cfg.DisablePings && node.IsResurrected() {
			if err := p.ping(ctx, node); err != nil {
				if !err.(*InvokerError).recoverable() {
					out, ferr := p.finalize(ctx, endpoint, nil, &TransportError{Reason: ReasonPingFailure, Message: err.Error(), cause: err})
					return out, endpoint, ferr
				}
				p.markDead(node)
				p.chain.add(node, "Ping", err)
				if p.sniffsOnConnectionFault() {
					p.sniffOnConnectionFailure(ctx)
				}
				continue
			}
		}

		built, err := p.callAndClassify(ctx, endpoint, body, shape, targetType)
		if err != nil {
			if te, isTE := err.(*TransportError); isTE && te.Reason == ReasonBadAuthentication {
				return nil, endpoint, err
			}
		}
		if ctx.Err() != nil {
			p.auditor.Append(CancellationRequested, node, pathAndQuery, ctx.Err())
			return nil, endpoint, p.wrapUnexpected(ctx.Err())
		}

		if built != nil && built.Details.SuccessOrKnownError(p.productKnowsAsNormal(endpoint, built.Details)) {
			p.markAlive(node)
			out, ferr := p.finalize(ctx, endpoint, built, err)
			return out, endpoint, ferr
		}

		p.markDead(node)
		p.chain.add(node, "CallProductEndpoint", firstNonNil(err, detailsErr(built)))
		if p.sniffsOnConnectionFault() {
			p.sniffOnConnectionFailure(ctx)
		}
	}

	out, ferr := p.finalize(ctx, lastEndpoint, nil, nil)
	return out, lastEndpoint, ferr
}

func firstNonNil(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

func detailsErr(b *BuiltResponse) error {
	if b == nil {
		return nil
	}
	return b.Details.OriginalException
}

// singleUsableNode reports the sole node in the pool when there is exactly
// one and the fast path applies: no forceNode (handled earlier), and the
// pool itself would otherwise have to ping/sniff a lone candidate anyway.
func (p *RequestPipeline) singleUsableNode() (*Node, bool) {
	nodes := p.pool.Nodes()
	if len(nodes) != 1 {
		return nil, false
	}
	if p.pool.SupportsReseeding() {
		// A reseedable pool might still grow; only take the fast path for
		// pools that are inherently single-node (SingleNode variant).
		return nil, false
	}
	if p.pool.MaxRetries() != 0 {
		return nil, false
	}
	return nodes[0], true
}

func (p *RequestPipeline) productKnowsAsNormal(endpoint Endpoint, details *ApiCallDetails) bool {
	if p.product == nil || details.OriginalException != nil {
		return false
	}
	if !details.HasStatusCode {
		return false
	}
	if details.HasSuccessfulStatusCode {
		return true
	}
	return p.product.StatusCodeClassifier(endpoint.Method, details.HTTPStatusCode) && details.HTTPStatusCode != 401
}

func (p *RequestPipeline) attemptForcedNode(ctx context.Context, endpoint Endpoint, body io.Reader, shape ResponseShape, targetType interface{}) (*BuiltResponse, error) {
	atomic.AddInt32(&p.attemptedNodes, 1)
	built, err := p.callAndClassify(ctx, endpoint, body, shape, targetType)
	if built != nil && built.Details.SuccessOrKnownError(p.productKnowsAsNormal(endpoint, built.Details)) {
		p.markAlive(endpoint.Node)
	} else {
		p.markDead(endpoint.Node)
	}
	return p.finalize(ctx, endpoint, built, err)
}
