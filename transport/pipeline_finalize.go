package transport

import (
	"context"
	"io"
	"net/http"
	"time"
)

// callAndClassify performs one attempt against endpoint: it invokes the
// Invoker, builds a response, and classifies the HTTP-level outcome into the
// BadAuthentication short-circuit the caller checks for. Any other
// non-success outcome is left for the caller to dead-mark and retry (§4.5
// PerNodeCall).
func (p *RequestPipeline) callAndClassify(ctx context.Context, endpoint Endpoint, body io.Reader, shape ResponseShape, targetType interface{}) (*BuiltResponse, error) {
	raw, rawErr := p.invoker.Request(ctx, endpoint, p.cfg, body)
	if rawErr != nil {
		p.lastDetails = &ApiCallDetails{URI: endpoint.URI(), Method: endpoint.Method, OriginalException: rawErr}
		return nil, rawErr
	}

	built, buildErr := BuildResponse(raw, p.cfg, endpoint, p.product, shape, targetType, p.onSlowDeserialize)
	if built != nil {
		p.lastDetails = built.Details
	}
	if buildErr != nil {
		p.auditor.Append(BadResponse, endpoint.Node, endpoint.PathAndQuery, buildErr)
		return built, buildErr
	}

	if built.Details.HTTPStatusCode == http.StatusUnauthorized {
		reason, _ := p.tryServerErrorReason(raw)
		p.auditor.Append(BadResponse, endpoint.Node, endpoint.PathAndQuery, nil)
		return built, &TransportError{
			Reason:      ReasonBadAuthentication,
			Endpoint:    endpoint,
			CallDetails: built.Details,
			AuditTrail:  p.auditor.Entries(),
			Message:     reason,
		}
	}

	if !built.Details.SuccessOrKnownError(p.productKnowsAsNormal(endpoint, built.Details)) {
		reason, _ := p.tryServerErrorReason(raw)
		if isClientRequestFault(built.Details.HTTPStatusCode) {
			p.auditor.Append(BadRequest, endpoint.Node, endpoint.PathAndQuery, nil)
		} else {
			p.auditor.Append(BadResponse, endpoint.Node, endpoint.PathAndQuery, nil)
		}
		if reason == "" {
			return built, nil
		}
		return built, &attemptLevelError{reason: reason}
	}

	return built, nil
}

// onSlowDeserialize is passed to BuildResponse as the slow-path hook (§4.4
// step 8); it is observability only and never alters the outcome.
func (p *RequestPipeline) onSlowDeserialize(d time.Duration) {}

func (p *RequestPipeline) tryServerErrorReason(raw *RawResponse) (string, bool) {
	if p.product == nil {
		return "", false
	}
	return p.product.TryGetServerErrorReason(raw)
}

func isClientRequestFault(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusUnauthorized
}

// attemptLevelError is a recoverable, attempt-scoped error: the caller dead
// marks the node and tries the next one, accumulating this into the
// attempt chain (§7).
type attemptLevelError struct{ reason string }

func (e *attemptLevelError) Error() string { return e.reason }

// finalize implements §4.5 FinalizeResponse: it turns whatever the loop
// produced into the (response, error) pair Execute returns, synthesizing a
// TransportError with the appropriate failure tag when the request did not
// end in success.
func (p *RequestPipeline) finalize(ctx context.Context, endpoint Endpoint, built *BuiltResponse, err error) (*BuiltResponse, error) {
	if endpoint.IsEmpty() {
		p.auditor.Append(NoNodesAttempted, nil, endpoint.PathAndQuery, nil)
		return p.terminal(endpoint, built, ReasonNoNodesAttempted, "no nodes were available to attempt this request", nil)
	}

	if te, ok := err.(*TransportError); ok {
		return p.terminal(endpoint, built, te.Reason, te.Message, te.cause)
	}

	if built != nil && built.Details.SuccessOrKnownError(p.productKnowsAsNormal(endpoint, built.Details)) {
		p.auditor.Append(HealthyResponse, endpoint.Node, endpoint.PathAndQuery, nil)
		p.lastDetails = built.Details
		return built, nil
	}

	if ale, ok := err.(*attemptLevelError); ok {
		p.chain.add(endpoint.Node, "CallProductEndpoint", ale)
	} else if err != nil {
		p.chain.add(endpoint.Node, "CallProductEndpoint", err)
	}

	p.auditor.Append(FailedOverAllNodes, endpoint.Node, endpoint.PathAndQuery, nil)
	reason := ReasonMaxRetriesReached
	message := "retries were depleted before a successful response was received"
	if p.isTakingTooLong(p.startedOn) {
		reason = ReasonMaxTimeoutReached
		message = "the retry timeout budget was exhausted before a successful response was received"
		p.auditor.Append(MaxTimeoutReached, endpoint.Node, endpoint.PathAndQuery, nil)
	} else {
		p.auditor.Append(MaxRetriesReached, endpoint.Node, endpoint.PathAndQuery, nil)
	}

	return p.terminal(endpoint, built, reason, message, p.chain.aggregate())
}

func (p *RequestPipeline) terminal(endpoint Endpoint, built *BuiltResponse, reason PipelineFailureReason, message string, cause error) (*BuiltResponse, error) {
	details := p.lastDetails
	if built != nil {
		details = built.Details
	}
	if details == nil {
		details = &ApiCallDetails{URI: endpoint.URI(), Method: endpoint.Method}
		if p.invoker != nil {
			if rf := p.invoker.ResponseFactory(); rf != nil {
				details = rf.Create(endpoint, p.cfg, cause, nil)
			}
		}
	}
	te := &TransportError{
		Reason:      reason,
		Endpoint:    endpoint,
		CallDetails: details,
		AuditTrail:  p.auditor.Entries(),
		Message:     message,
		cause:       cause,
	}
	details.OriginalException = te
	p.lastDetails = details
	if built == nil {
		built = &BuiltResponse{Details: details}
	}
	return built, te
}
