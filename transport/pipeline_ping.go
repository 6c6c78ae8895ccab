package transport

import (
	"context"
	"fmt"
)

// ping issues one liveness probe against node (§4.5 Ping), returning a
// recoverable *InvokerError on failure so the caller can dead-mark the node
// and continue failover.
func (p *RequestPipeline) ping(ctx context.Context, node *Node) error {
	method, path := p.product.PingEndpoint(node)
	endpoint := Endpoint{Method: method, PathAndQuery: path, Node: node}

	raw, err := p.invoker.Request(ctx, endpoint, p.cfg, nil)
	if err != nil {
		p.auditor.Append(PingFailure, node, path, err)
		if p.metrics != nil {
			p.metrics.PingsTotal.WithLabelValues("failure").Inc()
		}
		return classifyPingFailure(err)
	}
	if raw.Body != nil {
		raw.Body.Close()
	}

	if !raw.HasStatusCode || raw.StatusCode < 200 || raw.StatusCode >= 300 {
		p.auditor.Append(PingFailure, node, path, nil)
		if p.metrics != nil {
			p.metrics.PingsTotal.WithLabelValues("failure").Inc()
		}
		return NewWrappedTransportError(fmt.Errorf("ping against %s returned status %d", node, raw.StatusCode))
	}

	p.auditor.Append(PingSuccess, node, path, nil)
	if p.metrics != nil {
		p.metrics.PingsTotal.WithLabelValues("success").Inc()
	}
	return nil
}

func classifyPingFailure(err error) error {
	if ie, ok := err.(*InvokerError); ok {
		return ie
	}
	return NewWrappedTransportError(err)
}
