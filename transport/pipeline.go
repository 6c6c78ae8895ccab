package transport

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// maxViewRestarts bounds how many times a sniff-triggered refresh may
// restart node iteration within a single request (§4.5 nextNode).
const maxViewRestarts = 100

// staleTimeoutMargin is the 2% soft margin applied to isTakingTooLong
// (§4.5): a request is declared "taking too long" once elapsed reaches 98%
// of its timeout budget, not only once it's fully exhausted.
const staleTimeoutMargin = 0.98

// stalePooledConnectionHint is the error-message substring the single-node
// fast path uses to decide whether a failure looks like a stale pooled
// connection worth one same-node retry. Pattern-matched on purpose — §9
// design notes call this a hint, never authoritative.
const stalePooledConnectionHint = "Received an invalid status line:"

// RequestPipeline orchestrates one logical request across a NodePool,
// applying pinging, sniffing, retry, and failover policy (§4.5). It is
// single-use: construct one per request via Transport.
type RequestPipeline struct {
	cfg     *BoundConfiguration
	pool    NodePool
	product ProductRegistration
	invoker Invoker
	clock   Clock
	metrics *Metrics
	bootstrap *bootstrapSemaphore
	sniffGroup *singleflight.Group
	tracer  Tracer
	transportVersion string

	auditor *Auditor

	retried        int32
	attemptedNodes int32
	startedOn      time.Time

	refreshRequested bool
	viewRestarts     int

	lastDetails *ApiCallDetails
	lastReason  PipelineFailureReason
	lastReasonSet bool
	chain       attemptChain

	onRequestCompleted func(*ApiCallDetails)
}

// PipelineDeps bundles the collaborators a RequestPipeline needs; Transport
// assembles one per request.
type PipelineDeps struct {
	Config    *BoundConfiguration
	Pool      NodePool
	Product   ProductRegistration
	Invoker   Invoker
	Clock     Clock
	Metrics   *Metrics
	Bootstrap  *bootstrapSemaphore
	SniffGroup *singleflight.Group
	Tracer     Tracer
	TransportVersion string
	OnRequestCompleted func(*ApiCallDetails)
}

// NewRequestPipeline builds one pipeline for a single request.
func NewRequestPipeline(deps PipelineDeps) *RequestPipeline {
	clk := deps.Clock
	if clk == nil {
		clk = RealClock
	}
	var opaque string
	if deps.Config != nil {
		opaque = deps.Config.OpaqueID
	}
	return &RequestPipeline{
		cfg:       deps.Config,
		pool:      deps.Pool,
		product:   deps.Product,
		invoker:   deps.Invoker,
		clock:     clk,
		metrics:   deps.Metrics,
		bootstrap: deps.Bootstrap,
		sniffGroup: deps.SniffGroup,
		tracer:    deps.Tracer,
		transportVersion: deps.TransportVersion,
		auditor:   NewAuditor(clk, opaque),
		onRequestCompleted: deps.OnRequestCompleted,
	}
}

// Auditor exposes the trail being built for this request.
func (p *RequestPipeline) Auditor() *Auditor { return p.auditor }

// --- derived predicates (§4.5) ---

func (p *RequestPipeline) firstPoolUsageNeedsSniffing() bool {
	return p.cfg.SniffsOnStartup && p.pool.SupportsReseeding() && !p.pool.SniffedOnStartup() && !p.cfg.DisableSniff
}

func (p *RequestPipeline) sniffsOnStaleCluster() bool {
	return p.cfg.SniffInformationLifeSpan > 0 && p.pool.SupportsReseeding() && !p.cfg.DisableSniff
}

func (p *RequestPipeline) sniffsOnConnectionFault() bool {
	return p.cfg.SniffsOnConnectionFault && p.pool.SupportsReseeding() && !p.cfg.DisableSniff
}

func (p *RequestPipeline) staleClusterState() bool {
	if !p.sniffsOnStaleCluster() {
		return false
	}
	return p.clock.Now().Sub(p.pool.LastUpdate()) > p.cfg.SniffInformationLifeSpan
}

func (p *RequestPipeline) isTakingTooLong(startedOn time.Time) bool {
	budget := p.cfg.MaxRetryTimeout
	if budget <= 0 {
		budget = p.cfg.RequestTimeout
	}
	elapsed := p.clock.Now().Sub(startedOn)
	return float64(elapsed) >= staleTimeoutMargin*float64(budget)
}

func (p *RequestPipeline) depletedRetries() bool {
	maxRetries := p.cfg.MaxRetries
	if !p.cfg.MaxRetriesSet || maxRetries > p.pool.MaxRetries() {
		maxRetries = p.pool.MaxRetries()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	retried := atomic.LoadInt32(&p.retried)
	if int(retried) >= maxRetries+1 {
		return true
	}
	return p.isTakingTooLong(p.startedOn)
}

// MarkAlive resets the attempted node to healthy (§4.5 MarkAlive).
func (p *RequestPipeline) markAlive(n *Node) { n.MarkAlive() }

// MarkDead marks the attempted node dead per the configured back-off policy
// and bumps the retry counter (§4.5 MarkDead).
func (p *RequestPipeline) markDead(n *Node) {
	n.MarkDead(p.clock.Now(), p.cfg.DeadTimeout, p.cfg.MaxDeadTimeout, p.cfg.DeadTimeoutPolicy)
	atomic.AddInt32(&p.retried, 1)
	if p.metrics != nil {
		p.metrics.DeadMarksTotal.WithLabelValues(n.NormalizedKey()).Inc()
	}
	glog.V(2).Infof("transport: marked %s dead, resurrection due at %s", n, n.DeadUntil())
}

// Execute drives one logical request through the pool to completion. When
// ThrowExceptions is false the error result is always nil: a response is
// returned and any failure is carried in Details.OriginalException. When
// ThrowExceptions is true and the request fails, the error is returned,
// together with the built response when one exists.
func (p *RequestPipeline) Execute(ctx context.Context, method, pathAndQuery string, body io.Reader, shape ResponseShape, targetType interface{}) (*BuiltResponse, error) {
	p.startedOn = p.clock.Now()
	ctx, span := startSpan(ctx, p.tracer, Endpoint{Method: method, PathAndQuery: pathAndQuery}, p.cfg, p.product, p.transportVersion)

	endpoint := Endpoint{Method: method, PathAndQuery: pathAndQuery}

	compressed, err := compressBody(p.cfg, body)
	if err != nil {
		return p.finish(ctx, span, endpoint, nil, p.wrapUnexpected(err))
	}
	body = compressed

	if p.cfg.ForceNode != nil {
		endpoint.Node = p.cfg.ForceNode
		built, err := p.attemptForcedNode(ctx, endpoint, body, shape, targetType)
		return p.finish(ctx, span, endpoint, built, err)
	}

	if err := ctx.Err(); err != nil {
		p.auditor.Append(CancellationRequested, nil, pathAndQuery, err)
		return p.finish(ctx, span, endpoint, nil, p.wrapUnexpected(err))
	}

	p.firstPoolUsage(ctx)

	built, finalEndpoint, err := p.iterate(ctx, method, pathAndQuery, body, shape, targetType)
	return p.finish(ctx, span, finalEndpoint, built, err)
}

func (p *RequestPipeline) finish(ctx context.Context, span trace.Span, endpoint Endpoint, built *BuiltResponse, err error) (*BuiltResponse, error) {
	var details *ApiCallDetails
	if built != nil {
		details = built.Details
	} else if p.lastDetails != nil {
		details = p.lastDetails
	} else {
		details = &ApiCallDetails{URI: endpoint.URI(), Method: endpoint.Method}
	}
	if err != nil && details.OriginalException == nil {
		details.OriginalException = err
	}
	if !p.cfg.DisableAuditTrail {
		details.AuditTrail = p.auditor.Entries()
	}
	if p.onRequestCompleted != nil {
		p.onRequestCompleted(details)
	}
	if p.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		p.metrics.RequestsTotal.WithLabelValues(outcome).Inc()
		p.metrics.AttemptsPerRequest.Observe(float64(atomic.LoadInt32(&p.attemptedNodes)))
		p.metrics.RequestDuration.WithLabelValues(outcome).Observe(p.clock.Now().Sub(p.startedOn).Seconds())
	}
	endSpan(span, details, int(atomic.LoadInt32(&p.attemptedNodes)))
	if err != nil {
		glog.Warningf("transport: request %s %s failed after %d attempt(s): %v", endpoint.Method, endpoint.PathAndQuery, atomic.LoadInt32(&p.attemptedNodes), err)
	}
	if err != nil && p.cfg.ThrowExceptions {
		return built, err
	}
	if built == nil {
		built = &BuiltResponse{Details: details}
	}
	return built, nil
}

func (p *RequestPipeline) wrapUnexpected(err error) error {
	return &TransportError{Reason: ReasonUnexpected, Message: err.Error(), cause: err, AuditTrail: p.auditor.Entries()}
}

func isStalePooledConnection(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), stalePooledConnectionHint)
}
