package transport

import (
	"net/http"
	"strings"
	"time"
)

// GlobalConfiguration holds the transport-wide defaults bound once at
// Transport construction. A RequestConfiguration overlay may be supplied
// per-call; BoundConfiguration is the immutable merge of the two, following
// the "per-request wins, else global, else documented default" rule (§4.2).
type GlobalConfiguration struct {
	RequestTimeout    time.Duration
	PingTimeout       time.Duration
	MaxRetryTimeout   time.Duration // zero means "defaults to RequestTimeout"
	MaxRetries        *int          // nil means "pool decides"
	DisableSniff      bool
	DisablePings      bool
	DisableAuditTrail bool
	DisableDirectStreaming bool
	ThrowExceptions   bool

	Accept      string
	ContentType string

	Headers http.Header
	OpaqueID string
	RunAs    string

	Authentication string // opaque pre-formatted auth header value
	ClientCertificates []ClientCertificate

	HTTPCompression        bool
	HTTPPipeliningEnabled  bool
	TransferEncodingChunked bool

	SkipDeserializationForStatusCodes []int
	ParseAllHeaders                   bool
	ResponseHeadersToParse            []string

	EnableTCPStats        bool
	EnableThreadPoolStats bool
	UserAgent             string
	RequestMetadata       map[string]string

	SniffsOnStartup        bool
	SniffsOnConnectionFault bool
	SniffInformationLifeSpan time.Duration // zero means "never considered stale"

	ResponseBuilders []ResponseBuilder

	DeadTimeout    time.Duration // default 60s
	MaxDeadTimeout time.Duration // default 30m
	DeadTimeoutPolicy DeadTimeoutPolicy
}

// ClientCertificate is an opaque client-cert/key pair reference; the core
// never inspects bytes, it only threads the value to the Invoker.
type ClientCertificate struct {
	CertPath string
	KeyPath  string
}

// RequestConfiguration is the optional per-request overlay. Every field is a
// pointer/slice-or-nil so "unset" is distinguishable from "explicitly
// zero value", which is what the merge rule in §4.2 requires.
type RequestConfiguration struct {
	RequestTimeout    *time.Duration
	PingTimeout       *time.Duration
	MaxRetryTimeout   *time.Duration
	MaxRetries        *int
	ForceNode         *Node
	DisableSniff      *bool
	DisablePings      *bool
	DisableAuditTrail *bool
	DisableDirectStreaming *bool
	ThrowExceptions   *bool

	Accept      *string
	ContentType *string
	AllowedStatusCodes []int

	Headers http.Header
	OpaqueID *string
	RunAs    *string

	Authentication *string
	ClientCertificates []ClientCertificate

	HTTPCompression        *bool
	HTTPPipeliningEnabled  *bool
	TransferEncodingChunked *bool

	SkipDeserializationForStatusCodes []int
	ParseAllHeaders                   *bool
	ResponseHeadersToParse            []string

	EnableTCPStats        *bool
	EnableThreadPoolStats *bool
	RequestMetadata       map[string]string

	// immutable marks this overlay as safe to use as a cache key for
	// BoundConfiguration reuse (§4.2 cacheable / §8 R2).
	immutable bool
}

// Immutable returns a copy of ro marked as a stable cache key. Transport
// keeps at most one BoundConfiguration per immutable overlay pointer seen,
// in a map whose entries are never evicted.
func (ro RequestConfiguration) Immutable() RequestConfiguration {
	ro.immutable = true
	return ro
}

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPingTimeout    = 2 * time.Second
	defaultAccept         = "application/json"
	defaultContentType    = "application/json"
	defaultDeadTimeout    = 60 * time.Second
	defaultMaxDeadTimeout = 30 * time.Minute
)

// BoundConfiguration is the immutable snapshot of effective options for one
// request (§4.2). It is pure data produced by merging GlobalConfiguration
// with an optional RequestConfiguration overlay; construction performs no
// I/O (§8 A8: BoundConfiguration is a pure function of (global, overlay)).
type BoundConfiguration struct {
	RequestTimeout    time.Duration
	PingTimeout       time.Duration
	MaxRetryTimeout   time.Duration
	MaxRetries        int
	MaxRetriesSet     bool // true when an explicit cap (global or overlay) was supplied
	ForceNode         *Node

	DisableSniff      bool
	DisablePings      bool
	DisableAuditTrail bool
	DisableDirectStreaming bool
	ThrowExceptions   bool

	Accept      string
	ContentType string
	AllowedStatusCodes []int

	Headers http.Header
	OpaqueID string
	RunAs    string

	Authentication string
	ClientCertificates []ClientCertificate

	HTTPCompression        bool
	HTTPPipeliningEnabled  bool
	TransferEncodingChunked bool

	SkipDeserializationForStatusCodes []int
	ParseAllHeaders                   bool
	ResponseHeadersToParse            []string

	EnableTCPStats        bool
	EnableThreadPoolStats bool
	UserAgent             string
	RequestMetadata       map[string]string

	SniffsOnStartup          bool
	SniffsOnConnectionFault  bool
	SniffInformationLifeSpan time.Duration

	ResponseBuilders []ResponseBuilder

	DeadTimeout       time.Duration
	MaxDeadTimeout    time.Duration
	DeadTimeoutPolicy DeadTimeoutPolicy
}

// Bind merges global with an optional overlay into a BoundConfiguration.
// Per-request settings win when present; otherwise the global value; else
// the documented default. maxRetries is additionally clamped to the pool's
// ceiling by the caller (Transport/RequestPipeline), since BoundConfiguration
// itself has no pool reference.
func Bind(global GlobalConfiguration, overlay *RequestConfiguration) *BoundConfiguration {
	b := &BoundConfiguration{
		RequestTimeout:    orDuration(global.RequestTimeout, defaultRequestTimeout),
		PingTimeout:       orDuration(global.PingTimeout, defaultPingTimeout),
		DisableSniff:      global.DisableSniff,
		DisablePings:      global.DisablePings,
		DisableAuditTrail: global.DisableAuditTrail,
		DisableDirectStreaming: global.DisableDirectStreaming,
		ThrowExceptions:   global.ThrowExceptions,
		Accept:            orString(global.Accept, defaultAccept),
		ContentType:       orString(global.ContentType, defaultContentType),
		Headers:           cloneHeaders(global.Headers),
		OpaqueID:          global.OpaqueID,
		RunAs:             global.RunAs,
		Authentication:    global.Authentication,
		ClientCertificates: global.ClientCertificates,
		HTTPCompression:   global.HTTPCompression,
		HTTPPipeliningEnabled: global.HTTPPipeliningEnabled,
		TransferEncodingChunked: global.TransferEncodingChunked,
		SkipDeserializationForStatusCodes: global.SkipDeserializationForStatusCodes,
		ParseAllHeaders:   global.ParseAllHeaders,
		ResponseHeadersToParse: global.ResponseHeadersToParse,
		EnableTCPStats:    global.EnableTCPStats,
		EnableThreadPoolStats: global.EnableThreadPoolStats,
		UserAgent:         global.UserAgent,
		RequestMetadata:   global.RequestMetadata,
		SniffsOnStartup:   global.SniffsOnStartup,
		SniffsOnConnectionFault: global.SniffsOnConnectionFault,
		SniffInformationLifeSpan: global.SniffInformationLifeSpan,
		ResponseBuilders:  global.ResponseBuilders,
		DeadTimeout:       orDuration(global.DeadTimeout, defaultDeadTimeout),
		MaxDeadTimeout:    orDuration(global.MaxDeadTimeout, defaultMaxDeadTimeout),
		DeadTimeoutPolicy: global.DeadTimeoutPolicy,
	}
	if global.MaxRetries != nil {
		b.MaxRetries = *global.MaxRetries
		b.MaxRetriesSet = true
	}
	b.MaxRetryTimeout = b.RequestTimeout
	if global.MaxRetryTimeout > 0 {
		b.MaxRetryTimeout = global.MaxRetryTimeout
	}

	if overlay == nil {
		if b.OpaqueID != "" {
			b.Headers.Set("X-Opaque-Id", b.OpaqueID)
		}
		if b.RunAs != "" {
			b.Headers.Set("es-security-runas-user", b.RunAs)
		}
		return b
	}

	if overlay.RequestTimeout != nil {
		b.RequestTimeout = *overlay.RequestTimeout
		b.MaxRetryTimeout = b.RequestTimeout
	}
	if overlay.PingTimeout != nil {
		b.PingTimeout = *overlay.PingTimeout
	}
	if overlay.MaxRetryTimeout != nil {
		b.MaxRetryTimeout = *overlay.MaxRetryTimeout
	}
	if overlay.MaxRetries != nil {
		b.MaxRetries = *overlay.MaxRetries
		b.MaxRetriesSet = true
	}
	if overlay.ForceNode != nil {
		b.ForceNode = overlay.ForceNode
		b.MaxRetries = 0
		b.MaxRetriesSet = true
	}
	if overlay.DisableSniff != nil {
		b.DisableSniff = *overlay.DisableSniff
	}
	if overlay.DisablePings != nil {
		b.DisablePings = *overlay.DisablePings
	}
	if overlay.DisableAuditTrail != nil {
		b.DisableAuditTrail = *overlay.DisableAuditTrail
	}
	if overlay.DisableDirectStreaming != nil {
		b.DisableDirectStreaming = *overlay.DisableDirectStreaming
	}
	if overlay.ThrowExceptions != nil {
		b.ThrowExceptions = *overlay.ThrowExceptions
	}
	if overlay.Accept != nil {
		b.Accept = *overlay.Accept
	}
	if overlay.ContentType != nil {
		b.ContentType = *overlay.ContentType
	}
	if overlay.AllowedStatusCodes != nil {
		b.AllowedStatusCodes = overlay.AllowedStatusCodes
	}
	for k, vs := range overlay.Headers {
		for _, v := range vs {
			b.Headers.Add(k, v)
		}
	}
	if overlay.OpaqueID != nil {
		b.OpaqueID = *overlay.OpaqueID
	}
	if overlay.RunAs != nil {
		b.RunAs = *overlay.RunAs
	}
	if overlay.Authentication != nil {
		b.Authentication = *overlay.Authentication
	}
	if overlay.ClientCertificates != nil {
		b.ClientCertificates = overlay.ClientCertificates
	}
	if overlay.HTTPCompression != nil {
		b.HTTPCompression = *overlay.HTTPCompression
	}
	if overlay.HTTPPipeliningEnabled != nil {
		b.HTTPPipeliningEnabled = *overlay.HTTPPipeliningEnabled
	}
	if overlay.TransferEncodingChunked != nil {
		b.TransferEncodingChunked = *overlay.TransferEncodingChunked
	}
	if overlay.SkipDeserializationForStatusCodes != nil {
		b.SkipDeserializationForStatusCodes = overlay.SkipDeserializationForStatusCodes
	}
	if overlay.ParseAllHeaders != nil {
		b.ParseAllHeaders = *overlay.ParseAllHeaders
	}
	if overlay.ResponseHeadersToParse != nil {
		b.ResponseHeadersToParse = overlay.ResponseHeadersToParse
	}
	if overlay.EnableTCPStats != nil {
		b.EnableTCPStats = *overlay.EnableTCPStats
	}
	if overlay.EnableThreadPoolStats != nil {
		b.EnableThreadPoolStats = *overlay.EnableThreadPoolStats
	}
	if overlay.RequestMetadata != nil {
		merged := make(map[string]string, len(b.RequestMetadata)+len(overlay.RequestMetadata))
		for k, v := range b.RequestMetadata {
			merged[k] = v
		}
		for k, v := range overlay.RequestMetadata {
			merged[k] = v
		}
		b.RequestMetadata = merged
	}

	if b.OpaqueID != "" {
		b.Headers.Set("X-Opaque-Id", b.OpaqueID)
	}
	if b.RunAs != "" {
		b.Headers.Set("es-security-runas-user", b.RunAs)
	}
	return b
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func cloneHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

// ValidateResponseContentType implements the MIME-acceptance rule of §4.2:
// the trimmed response MIME equals or is prefixed by the trimmed accept
// value (case-insensitive), with a generic-JSON fallback for the vendored
// Elasticsearch MIME family (e.g. "application/vnd.elasticsearch+json").
func (b *BoundConfiguration) ValidateResponseContentType(mime string) bool {
	accept := strings.ToLower(strings.TrimSpace(b.Accept))
	got := strings.ToLower(strings.TrimSpace(mime))
	if got == "" {
		return false
	}
	if got == accept || strings.HasPrefix(got, accept) {
		return true
	}
	if accept == "application/json" && isVendoredJSON(got) {
		return true
	}
	return false
}

func isVendoredJSON(mime string) bool {
	return strings.HasPrefix(mime, "application/vnd.elasticsearch+json") ||
		strings.HasPrefix(mime, "application/vnd.elasticsearch+x-ndjson")
}
