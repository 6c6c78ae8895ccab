package vcluster

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/elastic-transport-go/transport"
)

func mustNode(t *testing.T, raw string) *transport.Node {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return transport.NewNode(u)
}

func TestClassifyRecognizesReservedPaths(t *testing.T) {
	assert.Equal(t, KindPing, classify(PingPath))
	assert.Equal(t, KindSniff, classify(SniffPath))
	assert.Equal(t, KindCall, classify("/_cluster/info"))
}

func TestVirtualClusterDefaultSuccessWhenNoRuleMatches(t *testing.T) {
	c := NewVirtualCluster([]string{"127.0.0.1:9200"}, time.Unix(0, 0))
	defer c.Close()
	node := c.SeedNodes(false)[0]
	cfg := transport.Bind(transport.GlobalConfiguration{}, nil)

	raw, err := c.Request(context.Background(), transport.Endpoint{Method: "GET", PathAndQuery: "/_cluster/info", Node: node}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, raw.StatusCode)
	body, _ := io.ReadAll(raw.Body)
	assert.Contains(t, string(body), "vcluster")
	assert.Equal(t, 1, c.Stats(node.NormalizedKey()).Called)
	assert.Equal(t, 1, c.Stats(node.NormalizedKey()).Successes)
}

func TestVirtualClusterRemapsMisconfiguredSuccessStatus(t *testing.T) {
	c := NewVirtualCluster([]string{"127.0.0.1:9200"}, time.Unix(0, 0))
	defer c.Close()
	node := c.SeedNodes(false)[0]
	c.Rules().Add(KindCall, &Rule{OnPort: 9200, Succeeds: false, Status: 204})
	cfg := transport.Bind(transport.GlobalConfiguration{}, nil)

	raw, err := c.Request(context.Background(), transport.Endpoint{Method: "GET", PathAndQuery: "/_cluster/info", Node: node}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 502, raw.StatusCode, "a failing rule with an accidental 2xx status is remapped to 502")
}

func TestVirtualClusterTakesAdvancesClockAndTimesOutPastBudget(t *testing.T) {
	c := NewVirtualCluster([]string{"127.0.0.1:9200"}, time.Unix(0, 0))
	defer c.Close()
	node := c.SeedNodes(false)[0]
	c.Rules().Add(KindCall, &Rule{OnPort: 9200, Succeeds: true, Takes: 3 * time.Second})
	cfg := transport.Bind(transport.GlobalConfiguration{RequestTimeout: time.Second}, nil)

	before := c.Clock().Now()
	_, err := c.Request(context.Background(), transport.Endpoint{Method: "GET", PathAndQuery: "/_cluster/info", Node: node}, cfg, nil)
	require.Error(t, err)
	assert.Equal(t, before.Add(time.Second), c.Clock().Now(), "clock advances by the request budget, not the full Takes duration")
}

func TestVirtualClusterTakesWithinBudgetSucceeds(t *testing.T) {
	c := NewVirtualCluster([]string{"127.0.0.1:9200"}, time.Unix(0, 0))
	defer c.Close()
	node := c.SeedNodes(false)[0]
	c.Rules().Add(KindCall, &Rule{OnPort: 9200, Succeeds: true, Takes: 200 * time.Millisecond})
	cfg := transport.Bind(transport.GlobalConfiguration{RequestTimeout: time.Second}, nil)

	before := c.Clock().Now()
	raw, err := c.Request(context.Background(), transport.Endpoint{Method: "GET", PathAndQuery: "/_cluster/info", Node: node}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, raw.StatusCode)
	assert.Equal(t, before.Add(200*time.Millisecond), c.Clock().Now())
}

func TestVirtualClusterRaisesConfiguredError(t *testing.T) {
	c := NewVirtualCluster([]string{"127.0.0.1:9200"}, time.Unix(0, 0))
	defer c.Close()
	node := c.SeedNodes(false)[0]
	wantErr := transport.NewConnectError(assertError("boom"))
	c.Rules().Add(KindCall, &Rule{OnPort: 9200, Raises: wantErr})
	cfg := transport.Bind(transport.GlobalConfiguration{}, nil)

	_, err := c.Request(context.Background(), transport.Endpoint{Method: "GET", PathAndQuery: "/_cluster/info", Node: node}, cfg, nil)
	assert.Same(t, wantErr, err)
	assert.Equal(t, 1, c.Stats(node.NormalizedKey()).Failures)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(s string) error { return simpleError(s) }
