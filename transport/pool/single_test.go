package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleNodeAlwaysYieldsSameNode(t *testing.T) {
	n := mustNode(t, "http://127.0.0.1:9200")
	p := NewSingleNode(n)

	v := p.View(nil)
	for i := 0; i < 3; i++ {
		got, ok := v.Next()
		require.True(t, ok, "repeatView never exhausts")
		assert.Equal(t, n.NormalizedKey(), got.NormalizedKey())
	}
	assert.Equal(t, 0, p.MaxRetries())
	assert.False(t, p.SupportsReseeding())
	assert.False(t, p.SupportsPinging())
	assert.True(t, p.SniffedOnStartup())
}

func TestSingleNodeUsingSSLReflectsScheme(t *testing.T) {
	assert.True(t, NewSingleNode(mustNode(t, "https://127.0.0.1:9200")).UsingSSL())
	assert.False(t, NewSingleNode(mustNode(t, "http://127.0.0.1:9200")).UsingSSL())
}
