package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// PipelineFailureReason is the single terminal-error tag a pipeline run
// settles on (§7).
type PipelineFailureReason int

const (
	ReasonUnexpected PipelineFailureReason = iota
	ReasonBadRequest
	ReasonBadResponse
	ReasonBadAuthentication
	ReasonPingFailure
	ReasonSniffFailure
	ReasonCouldNotStartSniffOnStartup
	ReasonMaxTimeoutReached
	ReasonMaxRetriesReached
	ReasonNoNodesAttempted
)

func (r PipelineFailureReason) String() string {
	switch r {
	case ReasonBadRequest:
		return "BadRequest"
	case ReasonBadResponse:
		return "BadResponse"
	case ReasonBadAuthentication:
		return "BadAuthentication"
	case ReasonPingFailure:
		return "PingFailure"
	case ReasonSniffFailure:
		return "SniffFailure"
	case ReasonCouldNotStartSniffOnStartup:
		return "CouldNotStartSniffOnStartup"
	case ReasonMaxTimeoutReached:
		return "MaxTimeoutReached"
	case ReasonMaxRetriesReached:
		return "MaxRetriesReached"
	case ReasonNoNodesAttempted:
		return "NoNodesAttempted"
	default:
		return "Unexpected"
	}
}

// Recoverable reports whether failover should continue after a terminal
// error tagged with this reason (§7 Recoverable/Non-recoverable sets).
func (r PipelineFailureReason) Recoverable() bool {
	switch r {
	case ReasonBadRequest, ReasonBadResponse, ReasonPingFailure:
		return true
	default:
		return false
	}
}

// TransportError is the exception type the pipeline synthesizes on terminal
// failure, carrying the endpoint, call details, audit trail, and failure
// tag per §7 "Propagation policy". It is also the type stored inside
// ApiCallDetails.OriginalException when throwExceptions is false.
type TransportError struct {
	Reason      PipelineFailureReason
	Endpoint    Endpoint
	CallDetails *ApiCallDetails
	AuditTrail  []AuditEntry
	Message     string

	// cause chains the aggregate of the attempt-level errors observed along
	// the way (failed pings, failed sniff candidates, and calls that returned
	// an error; a bad status with no error adds nothing), wrapped with
	// github.com/pkg/errors so %+v renders each attempt's stack.
	cause error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return e.Reason.String()
}

func (e *TransportError) Unwrap() error { return e.cause }

// Format supports %+v to render the full attempt chain, the way
// github.com/pkg/errors-wrapped errors do in the teacher's logs.
func (e *TransportError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.cause != nil {
				fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
			}
			return
		}
		fallthrough
	default:
		fmt.Fprint(s, e.Error())
	}
}

// attemptChain accumulates one wrapped error per attempt so that
// TransportError.cause becomes a single aggregate, mirroring the
// "chain of seen exceptions as an aggregate" requirement in §7.
type attemptChain struct {
	err error
}

func (c *attemptChain) add(node *Node, stage string, err error) {
	if err == nil {
		return
	}
	nodeDesc := "<no node>"
	if node != nil {
		nodeDesc = node.String()
	}
	wrapped := errors.Wrapf(err, "%s on %s", stage, nodeDesc)
	if c.err == nil {
		c.err = wrapped
		return
	}
	c.err = errors.Wrap(c.err, wrapped.Error())
}

func (c *attemptChain) aggregate() error { return c.err }

// invokerErrorKind tags the recognized recoverable transport-level errors an
// Invoker may return (§4.3 guarantee): connect failures, timeouts, or an
// opaque wrapped socket/HTTP-library error.
type invokerErrorKind int

const (
	ErrConnect invokerErrorKind = iota
	ErrTimeout
	ErrWrappedTransport
)

// InvokerError wraps a recognized recoverable error from an Invoker
// implementation.
type InvokerError struct {
	Kind invokerErrorKind
	Err  error
}

func (e *InvokerError) Error() string { return e.Err.Error() }
func (e *InvokerError) Unwrap() error  { return e.Err }

// recoverable reports whether failover should continue after this error
// rather than terminating the request outright. Every recognized Invoker
// error kind is a connection-level fault, so all are recoverable; a ping or
// call against the next node may still succeed.
func (e *InvokerError) recoverable() bool { return true }

func NewConnectError(err error) *InvokerError { return &InvokerError{Kind: ErrConnect, Err: err} }
func NewTimeoutError(err error) *InvokerError { return &InvokerError{Kind: ErrTimeout, Err: err} }
func NewWrappedTransportError(err error) *InvokerError {
	return &InvokerError{Kind: ErrWrappedTransport, Err: err}
}
