package transport

import (
	"bytes"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// ApiCallDetails is the bag attached to every response, success or failure
// (§3).
type ApiCallDetails struct {
	URI                   string
	Method                string
	HTTPStatusCode        int
	HasStatusCode         bool
	HasSuccessfulStatusCode bool
	HasExpectedContentType  bool

	RequestBodyBytes  int64
	ResponseBodyBytes int64
	ResponseMimeType  string

	ParsedHeaders map[string][]string

	AuditTrail []AuditEntry

	TCPStats        *TCPStats
	ThreadPoolStats *ThreadPoolStats

	OriginalException error

	// ResponseBytes holds the materialized body when DisableDirectStreaming
	// or a special response shape demanded a copy (§4.4 step 5).
	ResponseBytes []byte
}

// HasSuccessfulStatusCodeAndExpectedContentType is the derived predicate
// for a clean success (§3). A successful status whose content type is not
// the expected one does not mark the attempted node alive (§8 A4; see
// SuccessOrKnownError).
func (d *ApiCallDetails) HasSuccessfulStatusCodeAndExpectedContentType() bool {
	return d.HasSuccessfulStatusCode && d.HasExpectedContentType
}

// SuccessOrKnownError is the derived predicate that decides whether
// failover should continue: a true success (successful status with the
// expected content type), or a "known" non-success the product classifier
// recognizes as a normal application response and that is not itself a
// connection-level error (§3, GLOSSARY "Known error").
func (d *ApiCallDetails) SuccessOrKnownError(productKnowsAsNormal bool) bool {
	if d.HasSuccessfulStatusCode {
		return d.HasExpectedContentType
	}
	if d.OriginalException != nil {
		return false
	}
	return productKnowsAsNormal
}

// ResponseShape tags the small set of well-known response bodies the core
// knows how to materialize without a product-specific type (§4.4, §9
// "tagged variant").
type ResponseShape int

const (
	ShapeTyped ResponseShape = iota
	ShapeString
	ShapeBytes
	ShapeVoid
	ShapeStream
	ShapeDynamic
)

// BuiltResponse is the generic result of ResponseBuilder.Build: the call
// details plus, depending on Shape, exactly one populated body field.
type BuiltResponse struct {
	Details *ApiCallDetails
	Shape   ResponseShape

	StringBody string
	BytesBody  []byte
	StreamBody io.ReadCloser // ownership transferred to caller, leaveOpen=true
	DynamicBody *DynamicResponse
	TypedBody  interface{}
}

// ResponseBuilder turns a RawResponse into a typed response (§4.4). Callers
// register builders via BoundConfiguration.ResponseBuilders, ordered
// request-local first, then global, then product-provided (§3).
type ResponseBuilder interface {
	// CanBuild reports whether this builder handles shape/targetType.
	CanBuild(shape ResponseShape, targetType interface{}) bool

	// Build materializes a response synchronously.
	Build(raw *RawResponse, cfg *BoundConfiguration, endpoint Endpoint, shape ResponseShape, targetType interface{}) (*BuiltResponse, error)

	// SetErrorOnResponse attaches a deserialized error payload to a
	// built response when the call failed and an error deserializer is
	// installed (§4.4 step 6). ok is false when this builder has no error
	// deserializer for targetType.
	SetErrorOnResponse(built *BuiltResponse, raw *RawResponse) (ok bool)
}

// bodyPageSize is the copy buffer size used to materialize a response body
// into memory (§4.4 step 5): 81,920 bytes, matching the spec's page size.
const bodyPageSize = 81920

// deserializationSlowThreshold gates the observability attribute emitted
// when generic JSON deserialization takes unusually long (§4.4 step 8).
var deserializationSlowThreshold = 50 * time.Millisecond

// BuildResponse runs the full §4.4 algorithm against one RawResponse. product
// supplies the product status-code classifier fallback; product may be nil
// only when AllowedStatusCodes already resolves every case.
func BuildResponse(raw *RawResponse, cfg *BoundConfiguration, endpoint Endpoint, product ProductRegistration, shape ResponseShape, targetType interface{}, onSlowDeserialize func(time.Duration)) (*BuiltResponse, error) {
	details := &ApiCallDetails{
		URI:             endpoint.URI(),
		Method:          endpoint.Method,
		HTTPStatusCode:  raw.StatusCode,
		HasStatusCode:   raw.HasStatusCode,
		ResponseMimeType: raw.MimeType,
		TCPStats:        raw.TCPStats,
		ThreadPoolStats: raw.ThreadPoolStats,
		OriginalException: raw.OriginalError,
	}

	details.HasSuccessfulStatusCode = classifyStatus(raw, cfg, product, endpoint.Method)
	details.HasExpectedContentType = expectedContentType(raw, cfg, endpoint.Method)

	built := &BuiltResponse{Details: details, Shape: shape}

	if raw.HasStatusCode && containsInt(cfg.SkipDeserializationForStatusCodes, raw.StatusCode) {
		drainAndMaybeBuffer(raw, cfg, details)
		return built, nil
	}

	switch shape {
	case ShapeString:
		b, err := readAll(raw, cfg, details)
		if err != nil {
			return built, err
		}
		built.StringBody = string(b)
		return built, nil
	case ShapeBytes:
		b, err := readAll(raw, cfg, details)
		if err != nil {
			return built, err
		}
		built.BytesBody = b
		return built, nil
	case ShapeVoid:
		drainAndMaybeBuffer(raw, cfg, details)
		return built, nil
	case ShapeStream:
		if cfg.DisableDirectStreaming {
			b, err := readAll(raw, cfg, details)
			if err != nil {
				return built, err
			}
			built.StreamBody = io.NopCloser(bytes.NewReader(b))
			return built, nil
		}
		built.StreamBody = raw.Body // ownership transferred; caller must Close
		return built, nil
	case ShapeDynamic:
		b, err := readAll(raw, cfg, details)
		if err != nil {
			return built, err
		}
		built.DynamicBody = NewDynamicResponse(b, raw.MimeType)
		return built, nil
	}

	// Generic/typed path (§4.4 steps 6-8).
	for _, rb := range cfg.ResponseBuilders {
		if rb != nil && rb.CanBuild(ShapeTyped, targetType) {
			b, err := rb.Build(raw, cfg, endpoint, ShapeTyped, targetType)
			if err == nil && b != nil {
				details.ResponseBodyBytes = b.Details.ResponseBodyBytes
				b.Details = details
				if !details.HasSuccessfulStatusCode {
					rb.SetErrorOnResponse(b, raw)
				}
				return b, nil
			}
		}
	}

	body, err := readAll(raw, cfg, details)
	if err != nil {
		return built, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return built, nil // "input contains no JSON tokens" -> default/zero value
	}
	start := time.Now()
	err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(body, &built.TypedBody)
	if onSlowDeserialize != nil {
		if d := time.Since(start); d >= deserializationSlowThreshold {
			onSlowDeserialize(d)
		}
	}
	if err != nil {
		return built, err
	}
	return built, nil
}

func classifyStatus(raw *RawResponse, cfg *BoundConfiguration, product ProductRegistration, method string) bool {
	if containsInt(cfg.AllowedStatusCodes, -1) {
		return true
	}
	if raw.HasStatusCode && containsInt(cfg.AllowedStatusCodes, raw.StatusCode) {
		return true
	}
	if product != nil && raw.HasStatusCode {
		return product.StatusCodeClassifier(method, raw.StatusCode)
	}
	return false
}

func expectedContentType(raw *RawResponse, cfg *BoundConfiguration, method string) bool {
	if raw.StatusCode == http.StatusNoContent || method == http.MethodHead || raw.ContentLength == 0 {
		return true
	}
	return cfg.ValidateResponseContentType(raw.MimeType)
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func readAll(raw *RawResponse, cfg *BoundConfiguration, details *ApiCallDetails) ([]byte, error) {
	if raw.Body == nil {
		return nil, nil
	}
	defer raw.Body.Close()
	buf := make([]byte, 0, bodyPageSize)
	var out bytes.Buffer
	for {
		n, err := raw.Body.Read(buf[:cap(buf)])
		if n > 0 {
			out.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	b := out.Bytes()
	details.ResponseBodyBytes = int64(len(b))
	details.ResponseBytes = b
	return b, nil
}

func drainAndMaybeBuffer(raw *RawResponse, cfg *BoundConfiguration, details *ApiCallDetails) {
	if raw.Body == nil {
		return
	}
	if cfg.DisableDirectStreaming {
		_, _ = readAll(raw, cfg, details)
		return
	}
	raw.Body.Close()
}
