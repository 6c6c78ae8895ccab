package transport

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Node is an addressable endpoint with liveness metadata. A Node is created
// by seeding or sniffing, never destroyed — only dropped from a pool via
// reseeding. All lifecycle mutation funnels through MarkAlive/MarkDead on the
// pipeline's request path; everything else is read-only.
type Node struct {
	mu sync.RWMutex

	uri *url.URL

	isAlive        bool
	failedAttempts int
	deadUntil      time.Time

	// isResurrected is a transient per-view flag: set when a dead node is
	// handed back to the pipeline as a resurrection probe. It is not part of
	// the node's persistent state and is reset on every MarkAlive/MarkDead.
	isResurrected bool
}

// NewNode constructs an alive Node from a parsed base URI
// (scheme+host+port+basePath). The URI is normalized (trailing slash
// trimmed, scheme/host lower-cased) so that pool uniqueness checks are
// meaningful.
func NewNode(uri *url.URL) *Node {
	n := &Node{uri: normalizeURI(uri), isAlive: true}
	return n
}

func normalizeURI(u *url.URL) *url.URL {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.Path = strings.TrimSuffix(c.Path, "/")
	return &c
}

// URI returns the node's normalized base URI. Callers must not mutate it.
func (n *Node) URI() *url.URL { return n.uri }

// NormalizedKey is the identity aistore-style "uniqueness by normalized
// form" invariant (§3 NodePool) is checked against.
func (n *Node) NormalizedKey() string { return n.uri.String() }

func (n *Node) String() string { return n.uri.String() }

// IsAlive reports the node's current liveness flag.
func (n *Node) IsAlive() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isAlive
}

// FailedAttempts reports the current consecutive dead-mark count.
func (n *Node) FailedAttempts() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.failedAttempts
}

// DeadUntil reports the absolute time a dead node should be considered for
// resurrection; zero when the node is alive.
func (n *Node) DeadUntil() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deadUntil
}

// IsResurrected reports whether this node was handed to the current view as
// an under-probe resurrection candidate rather than a known-alive node.
func (n *Node) IsResurrected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isResurrected
}

// setResurrected marks/clears the transient resurrection flag. Called by the
// pool while materializing a view, never by pipeline request code directly.
func (n *Node) setResurrected(v bool) {
	n.mu.Lock()
	n.isResurrected = v
	n.mu.Unlock()
}

// SetResurrected is the pool-package entry point for setResurrected: pool
// implementations live in a separate package (transport/pool) but must
// still only flip this transient per-view flag, never any other node state.
func SetResurrected(n *Node, v bool) { n.setResurrected(v) }

// MarkAlive resets the node to healthy: alive, zero failed attempts, no
// dead-until deadline. §4.5 MarkAlive.
func (n *Node) MarkAlive() {
	n.mu.Lock()
	n.isAlive = true
	n.failedAttempts = 0
	n.deadUntil = time.Time{}
	n.isResurrected = false
	n.mu.Unlock()
}

// DeadTimeoutPolicy computes the back-off window applied on a dead-mark,
// given the node's failure count so far (before incrementing). Exponential
// doubling from deadTimeout, capped at maxDeadTimeout, per §4.5 default
// deadTimeoutPolicy.
type DeadTimeoutPolicy func(failedAttempts int, deadTimeout, maxDeadTimeout time.Duration) time.Duration

// DefaultDeadTimeoutPolicy is the specified default: deadTimeout doubled once
// per prior failure, clamped to maxDeadTimeout.
func DefaultDeadTimeoutPolicy(failedAttempts int, deadTimeout, maxDeadTimeout time.Duration) time.Duration {
	if failedAttempts < 0 {
		failedAttempts = 0
	}
	d := deadTimeout
	for i := 0; i < failedAttempts && d < maxDeadTimeout; i++ {
		d *= 2
	}
	if d > maxDeadTimeout {
		d = maxDeadTimeout
	}
	return d
}

// MarkDead marks the node dead, bumps failedAttempts, and schedules a
// resurrection window using policy (DefaultDeadTimeoutPolicy when nil).
// §4.5 MarkDead.
func (n *Node) MarkDead(now time.Time, deadTimeout, maxDeadTimeout time.Duration, policy DeadTimeoutPolicy) {
	if policy == nil {
		policy = DefaultDeadTimeoutPolicy
	}
	n.mu.Lock()
	wait := policy(n.failedAttempts, deadTimeout, maxDeadTimeout)
	n.deadUntil = now.Add(wait)
	n.isAlive = false
	n.failedAttempts++
	n.isResurrected = false
	n.mu.Unlock()
}

// ResurrectionDue reports whether a dead node's back-off window has elapsed
// as of now, making it eligible to be handed out as a probe.
func (n *Node) ResurrectionDue(now time.Time) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !n.isAlive && !n.deadUntil.After(now)
}

// nodeSnapshot is an immutable value copy of a node's identity, holding no
// live reference into mutable node state. The audit trail records the same
// identity directly as a string (NormalizedKey), not through this type.
type nodeSnapshot struct {
	uri string
}

func (n *Node) snapshot() nodeSnapshot {
	return nodeSnapshot{uri: n.NormalizedKey()}
}

func (s nodeSnapshot) String() string {
	if s.uri == "" {
		return "<no node>"
	}
	return s.uri
}

var _ fmt.Stringer = nodeSnapshot{}
