package transport

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindAppliesDocumentedDefaults(t *testing.T) {
	b := Bind(GlobalConfiguration{}, nil)
	assert.Equal(t, defaultRequestTimeout, b.RequestTimeout)
	assert.Equal(t, defaultPingTimeout, b.PingTimeout)
	assert.Equal(t, defaultAccept, b.Accept)
	assert.Equal(t, defaultContentType, b.ContentType)
	assert.Equal(t, defaultDeadTimeout, b.DeadTimeout)
	assert.Equal(t, defaultMaxDeadTimeout, b.MaxDeadTimeout)
	assert.False(t, b.MaxRetriesSet)
}

func TestBindGlobalOverridesDefaults(t *testing.T) {
	maxRetries := 3
	global := GlobalConfiguration{
		RequestTimeout: 5 * time.Second,
		MaxRetries:     &maxRetries,
		Accept:         "application/vnd.elasticsearch+json",
	}
	b := Bind(global, nil)
	assert.Equal(t, 5*time.Second, b.RequestTimeout)
	assert.Equal(t, 5*time.Second, b.MaxRetryTimeout, "MaxRetryTimeout defaults to RequestTimeout when unset")
	require.True(t, b.MaxRetriesSet)
	assert.Equal(t, 3, b.MaxRetries)
	assert.Equal(t, "application/vnd.elasticsearch+json", b.Accept)
}

func TestBindOverlayWinsOverGlobal(t *testing.T) {
	globalRetries := 3
	overlayRetries := 0
	global := GlobalConfiguration{MaxRetries: &globalRetries, RequestTimeout: 10 * time.Second}
	overlay := &RequestConfiguration{MaxRetries: &overlayRetries}

	b := Bind(global, overlay)
	assert.Equal(t, 0, b.MaxRetries)
	assert.True(t, b.MaxRetriesSet)
	assert.Equal(t, 10*time.Second, b.RequestTimeout, "unset overlay fields fall through to global")
}

func TestBindForceNodeClampsMaxRetriesToZero(t *testing.T) {
	node := NewNode(mustParseURL(t, "http://127.0.0.1:9200"))
	overlay := &RequestConfiguration{ForceNode: node}
	b := Bind(GlobalConfiguration{}, overlay)
	assert.Same(t, node, b.ForceNode)
	assert.Equal(t, 0, b.MaxRetries)
	assert.True(t, b.MaxRetriesSet)
}

func TestBindOpaqueIDAndRunAsSetHeaders(t *testing.T) {
	id := "corr-1"
	runAs := "impersonated"
	overlay := &RequestConfiguration{OpaqueID: &id, RunAs: &runAs}
	b := Bind(GlobalConfiguration{}, overlay)
	assert.Equal(t, "corr-1", b.Headers.Get("X-Opaque-Id"))
	assert.Equal(t, "impersonated", b.Headers.Get("es-security-runas-user"))
}

func TestBindIsPureGivenEqualInputs(t *testing.T) {
	global := GlobalConfiguration{RequestTimeout: 7 * time.Second}
	overlay := &RequestConfiguration{Accept: strPtr("text/plain")}
	a := Bind(global, overlay)
	b := Bind(global, overlay)
	assert.Equal(t, a.RequestTimeout, b.RequestTimeout)
	assert.Equal(t, a.Accept, b.Accept)
}

func TestBindDoesNotMutateGlobalHeadersAcrossCalls(t *testing.T) {
	global := GlobalConfiguration{Headers: http.Header{"X-Default": []string{"1"}}}
	overlay := &RequestConfiguration{Headers: http.Header{"X-Extra": []string{"2"}}}
	first := Bind(global, overlay)
	second := Bind(global, nil)
	assert.Equal(t, "2", first.Headers.Get("X-Extra"))
	assert.Empty(t, second.Headers.Get("X-Extra"), "overlay headers must not leak into a later unrelated bind")
}

func TestValidateResponseContentType(t *testing.T) {
	cases := []struct {
		name   string
		accept string
		mime   string
		want   bool
	}{
		{"exact match", "application/json", "application/json", true},
		{"prefixed with charset", "application/json", "application/json; charset=utf-8", true},
		{"vendored elasticsearch json", "application/json", "application/vnd.elasticsearch+json;compatible-with=8", true},
		{"mismatched family", "application/json", "text/plain", false},
		{"empty mime", "application/json", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Bind(GlobalConfiguration{Accept: tc.accept}, nil)
			assert.Equal(t, tc.want, b.ValidateResponseContentType(tc.mime))
		})
	}
}

func strPtr(s string) *string { return &s }
