package pool

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elastic/elastic-transport-go/transport"
)

// Static is a fixed node set, round-robined across alive nodes with a
// global cursor advanced atomically. When no node is alive it yields one
// dead node as a resurrection probe and emits a Resurrection audit event
// (§4.1).
type Static struct {
	mu         sync.RWMutex
	nodes      []*transport.Node
	cursor     uint64
	clock      transport.Clock
	lastUpdate time.Time
	sniffed    bool
}

// NewStatic builds a fixed pool. clock defaults to transport.RealClock.
func NewStatic(nodes []*transport.Node, clock transport.Clock) *Static {
	if clock == nil {
		clock = transport.RealClock
	}
	return &Static{nodes: append([]*transport.Node(nil), nodes...), clock: clock, lastUpdate: clock.Now()}
}

func (p *Static) snapshotNodes() []*transport.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*transport.Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

func (p *Static) View(auditor *transport.Auditor) transport.NodeView {
	nodes := p.snapshotNodes()

	alive := make([]*transport.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsAlive() {
			alive = append(alive, n)
		}
	}
	if len(alive) > 0 {
		start := atomic.AddUint64(&p.cursor, 1) - 1
		ordered := make([]*transport.Node, len(alive))
		for i := range alive {
			ordered[i] = alive[(int(start)+i)%len(alive)]
		}
		return newOrderedView(ordered)
	}

	// No alive node: offer the earliest-eligible dead node as a probe.
	var best *transport.Node
	for _, n := range nodes {
		if best == nil || n.DeadUntil().Before(best.DeadUntil()) {
			best = n
		}
	}
	if best == nil {
		return newOrderedView(nil)
	}
	if auditor != nil {
		auditor.Append(transport.Resurrection, best, "", nil)
	}
	return newResurrectionView(best)
}

func (p *Static) Reseed([]*transport.Node) error { return ErrReseedNotSupported }

func (p *Static) MarkAsSniffed() {
	p.mu.Lock()
	p.sniffed = true
	p.mu.Unlock()
}

func (p *Static) Nodes() []*transport.Node { return p.snapshotNodes() }

func (p *Static) LastUpdate() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastUpdate
}

func (p *Static) SniffedOnStartup() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sniffed
}

func (p *Static) UsingSSL() bool {
	nodes := p.snapshotNodes()
	if len(nodes) == 0 {
		return false
	}
	return strings.EqualFold(nodes[0].URI().Scheme, "https")
}

func (p *Static) SupportsPinging() bool   { return true }
func (p *Static) SupportsReseeding() bool { return false }

func (p *Static) MaxRetries() int {
	n := len(p.snapshotNodes())
	if n == 0 {
		return 0
	}
	return n - 1
}

type orderedView struct {
	nodes []*transport.Node
	pos   int
}

func newOrderedView(nodes []*transport.Node) transport.NodeView { return &orderedView{nodes: nodes} }

func (v *orderedView) Next() (*transport.Node, bool) {
	if v.pos >= len(v.nodes) {
		return nil, false
	}
	n := v.nodes[v.pos]
	v.pos++
	return n, true
}

// resurrectionView yields a single dead node flagged as under-probe, then
// is exhausted.
type resurrectionView struct {
	node *transport.Node
	done bool
}

func newResurrectionView(node *transport.Node) transport.NodeView {
	transport.SetResurrected(node, true)
	return &resurrectionView{node: node}
}

func (v *resurrectionView) Next() (*transport.Node, bool) {
	if v.done {
		return nil, false
	}
	v.done = true
	return v.node, true
}
