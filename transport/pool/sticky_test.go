package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/elastic/elastic-transport-go/transport"
)

func TestStickyStaysOnFirstLiveNodeAcrossCalls(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	n1 := mustNode(t, "http://127.0.0.1:9200")
	n2 := mustNode(t, "http://127.0.0.1:9201")
	p := NewSticky([]*transport.Node{n1, n2}, nil, clk)

	for i := 0; i < 3; i++ {
		v := p.View(nil)
		n, ok := v.Next()
		require.True(t, ok)
		assert.Equal(t, n1.NormalizedKey(), n.NormalizedKey())
	}
}

func TestStickyAdvancesOnlyWhenCurrentDies(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	n1 := mustNode(t, "http://127.0.0.1:9200")
	n2 := mustNode(t, "http://127.0.0.1:9201")
	p := NewSticky([]*transport.Node{n1, n2}, nil, clk)

	v := p.View(nil)
	n, _ := v.Next()
	require.Equal(t, n1.NormalizedKey(), n.NormalizedKey())

	n1.MarkDead(clk.Now(), time.Hour, time.Hour, nil)

	v = p.View(nil)
	n, ok := v.Next()
	require.True(t, ok)
	assert.Equal(t, n2.NormalizedKey(), n.NormalizedKey())
}

func TestStickyNonSniffingRejectsReseed(t *testing.T) {
	p := NewSticky(nil, nil, nil)
	assert.ErrorIs(t, p.Reseed(nil), ErrReseedNotSupported)
	assert.False(t, p.SupportsReseeding())
}

func TestStickySniffingAllowsReseedAndResetsCurrent(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	n1 := mustNode(t, "http://127.0.0.1:9200")
	p := NewStickySniffing([]*transport.Node{n1}, nil, clk)
	require.True(t, p.SupportsReseeding())

	v := p.View(nil)
	n, _ := v.Next()
	require.Equal(t, n1.NormalizedKey(), n.NormalizedKey())

	n2 := mustNode(t, "http://127.0.0.1:9300")
	require.NoError(t, p.Reseed([]*transport.Node{n2}))

	v = p.View(nil)
	n, ok := v.Next()
	require.True(t, ok)
	assert.Equal(t, n2.NormalizedKey(), n.NormalizedKey())
}

func TestStickyScorerOrdersCandidates(t *testing.T) {
	n1 := mustNode(t, "http://127.0.0.1:9200")
	n2 := mustNode(t, "http://127.0.0.1:9201")
	scorer := func(n *transport.Node) int {
		if n.NormalizedKey() == n2.NormalizedKey() {
			return -1
		}
		return 0
	}
	p := NewSticky([]*transport.Node{n1, n2}, scorer, nil)
	v := p.View(nil)
	n, ok := v.Next()
	require.True(t, ok)
	assert.Equal(t, n2.NormalizedKey(), n.NormalizedKey(), "lower score sorts first")
}
