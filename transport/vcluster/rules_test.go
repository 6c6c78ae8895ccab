package vcluster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleSetMatchesMostSpecificTierFirst(t *testing.T) {
	rs := NewRuleSet()
	anyRule := &Rule{Succeeds: true}
	portRule := &Rule{OnPort: 9200, Succeeds: false, Status: 500}
	pathRule := &Rule{Path: func(p string) bool { return strings.HasPrefix(p, "/_bulk") }, Succeeds: false, Status: 413}
	portAndPathRule := &Rule{OnPort: 9200, Path: func(p string) bool { return strings.HasPrefix(p, "/_bulk") }, Succeeds: false, Status: 429}
	rs.Add(KindCall, anyRule).Add(KindCall, portRule).Add(KindCall, pathRule).Add(KindCall, portAndPathRule)

	got := rs.Match(KindCall, 9200, "/_bulk")
	assert.Same(t, portAndPathRule, got, "onPort+path beats every less specific tier")

	got = rs.Match(KindCall, 9200, "/_search")
	assert.Same(t, portRule, got, "onPort alone beats path-only and catch-all")

	got = rs.Match(KindCall, 9300, "/_bulk")
	assert.Same(t, pathRule, got, "path-only beats the catch-all when port doesn't match")

	got = rs.Match(KindCall, 9300, "/_search")
	assert.Same(t, anyRule, got, "falls back to the catch-all rule")
}

func TestRuleSetSkipsExhaustedRuleInFavorOfLessSpecific(t *testing.T) {
	rs := NewRuleSet()
	limited := &Rule{OnPort: 9200, Times: Times(1), Succeeds: false, Status: 500}
	fallback := &Rule{Succeeds: true}
	rs.Add(KindCall, limited).Add(KindCall, fallback)

	got := rs.Match(KindCall, 9200, "/_search")
	require.Same(t, limited, got)
	limited.recordExecution()

	got = rs.Match(KindCall, 9200, "/_search")
	assert.Same(t, fallback, got, "an exhausted rule yields to the next candidate")
}

func TestRuleSetReturnsNilWhenNothingMatches(t *testing.T) {
	rs := NewRuleSet()
	rs.Add(KindPing, &Rule{Succeeds: true})
	assert.Nil(t, rs.Match(KindCall, 9200, "/_search"))
}

func TestRuleExecuteCountTracksRecordedExecutions(t *testing.T) {
	r := &Rule{Succeeds: true}
	assert.Equal(t, 0, r.ExecuteCount())
	r.recordExecution()
	r.recordExecution()
	assert.Equal(t, 2, r.ExecuteCount())
}
