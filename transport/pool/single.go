// Package pool implements the NodePool variants described in §4.1:
// SingleNode, Static, Sniffing, Sticky/StickySniffing, and Cloud.
package pool

import (
	"errors"
	"time"

	"github.com/elastic/elastic-transport-go/transport"
)

// ErrReseedNotSupported is returned by Reseed on pools whose
// SupportsReseeding() is false.
var ErrReseedNotSupported = errors.New("pool: reseeding not supported")

// SingleNode is the trivial one-node pool: no pinging, no reseeding, and
// maxRetries is always 0, so the pipeline's single-node fast path and
// forceNode semantics both degenerate to "try this one node" (§4.1).
type SingleNode struct {
	node *transport.Node
}

// NewSingleNode wraps one node.
func NewSingleNode(node *transport.Node) *SingleNode { return &SingleNode{node: node} }

func (p *SingleNode) View(auditor *transport.Auditor) transport.NodeView {
	return &repeatView{node: p.node}
}

func (p *SingleNode) Reseed([]*transport.Node) error { return ErrReseedNotSupported }
func (p *SingleNode) MarkAsSniffed()                 {}
func (p *SingleNode) Nodes() []*transport.Node        { return []*transport.Node{p.node} }
func (p *SingleNode) LastUpdate() time.Time           { return time.Time{} }
func (p *SingleNode) SniffedOnStartup() bool          { return true }
func (p *SingleNode) UsingSSL() bool                  { return p.node.URI().Scheme == "https" }
func (p *SingleNode) SupportsPinging() bool           { return false }
func (p *SingleNode) SupportsReseeding() bool         { return false }
func (p *SingleNode) MaxRetries() int                 { return 0 }

// repeatView yields the same node every time: SingleNode has nothing else
// to fail over to, so the pipeline's own depletedRetries bound (maxRetries
// == 0, i.e. at most one attempt) is what stops iteration, not exhaustion
// of the view.
type repeatView struct{ node *transport.Node }

func (v *repeatView) Next() (*transport.Node, bool) { return v.node, true }
