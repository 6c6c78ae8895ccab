package transport

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// errSniffExhausted marks that every candidate node was tried and none
// produced a usable reseed.
var errSniffExhausted = errors.New("transport: sniff exhausted all candidate nodes")

// firstPoolUsage performs the at-most-once sniff-on-startup, serialized
// across concurrently racing requests by the shared bootstrapSemaphore
// (§4.5, §8 A3). It is a no-op once any request has completed a startup
// sniff.
func (p *RequestPipeline) firstPoolUsage(ctx context.Context) {
	if !p.firstPoolUsageNeedsSniffing() {
		return
	}
	if p.bootstrap == nil {
		p.doSniff(ctx, SniffOnStartup)
		return
	}
	if !p.bootstrap.TryAcquire(ctx, p.cfg.RequestTimeout) {
		p.auditor.Append(SniffFailure, nil, "", nil)
		glog.Warningf("transport: timed out waiting for the bootstrap sniff slot")
		return
	}
	defer p.bootstrap.Release()
	if p.pool.SniffedOnStartup() {
		return // another request already won the race
	}
	p.doSniff(ctx, SniffOnStartup)
}

func (p *RequestPipeline) sniffOnStaleCluster(ctx context.Context) {
	p.doSniff(ctx, SniffOnStaleCluster)
}

func (p *RequestPipeline) sniffOnConnectionFailure(ctx context.Context) {
	p.doSniff(ctx, SniffOnFail)
}

// doSniff tries each candidate node, in product-defined order, until one
// yields a fresh node set to reseed the pool with (§4.5 Sniff). kind tags
// which trigger initiated this attempt in the audit trail. Concurrent
// callers collapse onto a single in-flight sniff via sniffGroup, so a
// connection-fault storm across many simultaneous requests issues one sniff
// round-trip, not one per request.
func (p *RequestPipeline) doSniff(ctx context.Context, kind AuditEventKind) {
	if p.product == nil || !p.product.SupportsSniff() {
		return
	}
	p.auditor.Append(kind, nil, "", nil)

	sniffedVia, err := p.runSniff(ctx)
	if err != nil {
		p.auditor.Append(SniffFailure, nil, "", nil)
		if p.metrics != nil {
			p.metrics.SniffsTotal.WithLabelValues("failure").Inc()
		}
		glog.Warningf("transport: sniff failed: %v", err)
		return
	}

	p.auditor.Append(SniffSuccess, sniffedVia, "", nil)
	p.refreshRequested = true
	if p.metrics != nil {
		p.metrics.SniffsTotal.WithLabelValues("success").Inc()
	}
	glog.V(2).Infof("transport: sniff succeeded via %s", sniffedVia)
}

func (p *RequestPipeline) runSniff(ctx context.Context) (*Node, error) {
	if p.sniffGroup == nil {
		return p.sniffOnce(ctx)
	}
	v, err, _ := p.sniffGroup.Do("sniff", func() (interface{}, error) {
		return p.sniffOnce(ctx)
	})
	if err != nil {
		return nil, err
	}
	n, _ := v.(*Node)
	return n, nil
}

func (p *RequestPipeline) sniffOnce(ctx context.Context) (*Node, error) {
	ordered := p.product.SniffOrder(p.pool.Nodes())
	for _, n := range ordered {
		method, path := p.product.SniffEndpoint(n)
		discovered, err := p.product.Sniff(ctx, p.invoker, p.pool.UsingSSL(), method, path, n, p.cfg)
		if err != nil {
			p.chain.add(n, "Sniff", err)
			continue
		}
		if reseedErr := p.pool.Reseed(discovered); reseedErr == nil {
			p.pool.MarkAsSniffed()
			return n, nil
		}
	}
	return nil, errSniffExhausted
}
