package pool

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elastic/elastic-transport-go/transport"
)

// Sniffing behaves like Static but SupportsReseeding(). Reseed takes an
// exclusive lock; View takes a consistent snapshot under a shared lock so
// concurrent reads never observe a partial topology (§4.1).
type Sniffing struct {
	mu         sync.RWMutex
	nodes      []*transport.Node
	cursor     uint64
	clock      transport.Clock
	lastUpdate time.Time
	sniffed    bool
}

func NewSniffing(nodes []*transport.Node, clock transport.Clock) *Sniffing {
	if clock == nil {
		clock = transport.RealClock
	}
	return &Sniffing{nodes: append([]*transport.Node(nil), nodes...), clock: clock, lastUpdate: clock.Now()}
}

func (p *Sniffing) snapshotNodes() []*transport.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*transport.Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

func (p *Sniffing) View(auditor *transport.Auditor) transport.NodeView {
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

// Reseed atomically replaces the node set. Existing *Node values are
// discarded wholesale — there is no attempt to preserve liveness state
// across a reseed, matching the teacher's cluster map replace-on-sync
// semantics (cluster.Smap is swapped, not merged, on a new version).
func (p *Sniffing) Reseed(newNodes []*transport.Node) error {
	p.mu.Lock()
	p.nodes = append([]*transport.Node(nil), newNodes...)
	p.lastUpdate = p.clock.Now()
	atomic.StoreUint64(&p.cursor, 0)
	p.mu.Unlock()
	return nil
}

func (p *Sniffing) MarkAsSniffed() {
	p.mu.Lock()
	p.sniffed = true
	p.mu.Unlock()
}

func (p *Sniffing) Nodes() []*transport.Node { return p.snapshotNodes() }

func (p *Sniffing) LastUpdate() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastUpdate
}

func (p *Sniffing) SniffedOnStartup() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sniffed
}

func (p *Sniffing) UsingSSL() bool {
	nodes := p.snapshotNodes()
	if len(nodes) == 0 {
		return false
	}
	return strings.EqualFold(nodes[0].URI().Scheme, "https")
}

func (p *Sniffing) SupportsPinging() bool   { return true }
func (p *Sniffing) SupportsReseeding() bool { return true }

func (p *Sniffing) MaxRetries() int {
	n := len(p.snapshotNodes())
	if n == 0 {
		return 0
	}
	return n - 1
}
