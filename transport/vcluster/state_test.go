package vcluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsStoreAccumulatesPerNodeCounters(t *testing.T) {
	s := newStatsStore()
	defer s.close()

	s.increment("node-a", "called")
	s.increment("node-a", "called")
	s.increment("node-a", "successes")
	s.increment("node-b", "failures")

	a := s.get("node-a")
	assert.Equal(t, 2, a.Called)
	assert.Equal(t, 1, a.Successes)
	assert.Equal(t, 0, a.Failures)

	b := s.get("node-b")
	assert.Equal(t, 1, b.Failures)
	assert.Equal(t, 0, b.Called)
}

func TestStatsStoreUnknownNodeReturnsZeroValue(t *testing.T) {
	s := newStatsStore()
	defer s.close()
	assert.Equal(t, NodeStats{}, s.get("never-seen"))
}
