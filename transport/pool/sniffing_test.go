package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/elastic/elastic-transport-go/transport"
)

func TestSniffingReseedReplacesNodesAndResetsCursor(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	n1 := mustNode(t, "http://127.0.0.1:9200")
	p := NewSniffing([]*transport.Node{n1}, clk)
	require.True(t, p.SupportsReseeding())
	p.View(nil) // advances the round-robin cursor

	n2 := mustNode(t, "http://127.0.0.1:9300")
	n3 := mustNode(t, "http://127.0.0.1:9301")
	clk.Step(time.Minute)
	require.NoError(t, p.Reseed([]*transport.Node{n2, n3}))

	nodes := p.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, clk.Now(), p.LastUpdate())
	assert.Zero(t, p.cursor, "reseed resets the round-robin cursor")
}

func TestSniffingMarkAsSniffedIsIdempotent(t *testing.T) {
	p := NewSniffing(nil, nil)
	assert.False(t, p.SniffedOnStartup())
	p.MarkAsSniffed()
	p.MarkAsSniffed()
	assert.True(t, p.SniffedOnStartup())
}

func TestSniffingViewFallsBackToResurrectionProbeWhenAllDead(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	n1 := mustNode(t, "http://127.0.0.1:9200")
	n1.MarkDead(clk.Now(), time.Second, time.Hour, nil)
	p := NewSniffing([]*transport.Node{n1}, clk)

	v := p.View(nil)
	n, ok := v.Next()
	require.True(t, ok)
	assert.True(t, n.IsResurrected())
}
