package pool

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elastic/elastic-transport-go/transport"
)

// NodeScorer ranks nodes for Sticky pool ordering. The default, used when
// none is supplied, treats every node as equal rank, preserving
// construction/reseed order (§4.1 "default constant").
type NodeScorer func(n *transport.Node) int

func defaultScorer(*transport.Node) int { return 0 }

// Sticky yields the first live node by scorer order and never advances past
// it until that node is marked dead (§4.1). StickySniffing is the same
// behavior with reseeding permitted; construct it via NewStickySniffing.
type Sticky struct {
	mu          sync.RWMutex
	nodes       []*transport.Node // stable-sorted by scorer
	scorer      NodeScorer
	current     *transport.Node
	clock       transport.Clock
	lastUpdate  time.Time
	sniffed     bool
	allowReseed bool
}

func newSticky(nodes []*transport.Node, scorer NodeScorer, clock transport.Clock, allowReseed bool) *Sticky {
	if scorer == nil {
		scorer = defaultScorer
	}
	if clock == nil {
		clock = transport.RealClock
	}
	p := &Sticky{scorer: scorer, clock: clock, lastUpdate: clock.Now(), allowReseed: allowReseed}
	p.setNodes(nodes)
	return p
}

// NewSticky builds a non-reseedable sticky pool.
func NewSticky(nodes []*transport.Node, scorer NodeScorer, clock transport.Clock) *Sticky {
	return newSticky(nodes, scorer, clock, false)
}

// NewStickySniffing builds a reseedable sticky pool.
func NewStickySniffing(nodes []*transport.Node, scorer NodeScorer, clock transport.Clock) *Sticky {
	return newSticky(nodes, scorer, clock, true)
}

func (p *Sticky) setNodes(nodes []*transport.Node) {
	ordered := append([]*transport.Node(nil), nodes...)
	sort.SliceStable(ordered, func(i, j int) bool { return p.scorer(ordered[i]) < p.scorer(ordered[j]) })
	p.nodes = ordered
	p.current = nil
}

func (p *Sticky) snapshotNodes() []*transport.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*transport.Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

func (p *Sticky) View(auditor *transport.Auditor) transport.NodeView {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.IsAlive() {
		return newOrderedView([]*transport.Node{p.current})
	}

	for _, n := range p.nodes {
		if n.IsAlive() {
			p.current = n
			return newOrderedView([]*transport.Node{n})
		}
	}

	var best *transport.Node
	for _, n := range p.nodes {
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
	p.current = best
	return newResurrectionView(best)
}

func (p *Sticky) Reseed(newNodes []*transport.Node) error {
	if !p.allowReseed {
		return ErrReseedNotSupported
	}
	p.mu.Lock()
	p.setNodes(newNodes)
	p.lastUpdate = p.clock.Now()
	p.mu.Unlock()
	return nil
}

func (p *Sticky) MarkAsSniffed() {
	p.mu.Lock()
	p.sniffed = true
	p.mu.Unlock()
}

func (p *Sticky) Nodes() []*transport.Node { return p.snapshotNodes() }

func (p *Sticky) LastUpdate() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastUpdate
}

func (p *Sticky) SniffedOnStartup() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sniffed
}

func (p *Sticky) UsingSSL() bool {
	nodes := p.snapshotNodes()
	if len(nodes) == 0 {
		return false
	}
	return strings.EqualFold(nodes[0].URI().Scheme, "https")
}

func (p *Sticky) SupportsPinging() bool   { return true }
func (p *Sticky) SupportsReseeding() bool { return p.allowReseed }

func (p *Sticky) MaxRetries() int {
	n := len(p.snapshotNodes())
	if n == 0 {
		return 0
	}
	return n - 1
}
