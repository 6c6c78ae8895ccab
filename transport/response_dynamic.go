package transport

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DynamicResponse is the well-known "parsed JSON when the MIME is JSON,
// else { "body": <text> }" shape from §4.4 step 4. It exposes a gjson-backed
// path accessor instead of forcing callers to unmarshal into a concrete
// type, the way a generic "give me whatever came back" response should.
type DynamicResponse struct {
	raw    []byte
	isJSON bool
}

// NewDynamicResponse classifies body by mime and wraps it.
func NewDynamicResponse(body []byte, mime string) *DynamicResponse {
	isJSON := strings.Contains(strings.ToLower(mime), "json")
	d := &DynamicResponse{raw: body, isJSON: isJSON}
	if !isJSON {
		d.raw = wrapAsBodyObject(body)
		d.isJSON = true
	}
	return d
}

func wrapAsBodyObject(body []byte) []byte {
	var b strings.Builder
	b.WriteString(`{"body":`)
	b.Write(mustMarshalJSONString(string(body)))
	b.WriteString(`}`)
	return []byte(b.String())
}

// mustMarshalJSONString quotes s for the synthetic {"body": ...} envelope.
func mustMarshalJSONString(s string) []byte {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return []byte(b.String())
}

// Get returns the gjson.Result at path, e.g. "hits.total.value".
func (d *DynamicResponse) Get(path string) gjson.Result {
	return gjson.GetBytes(d.raw, path)
}

// Raw returns the underlying (possibly synthesized) JSON bytes.
func (d *DynamicResponse) Raw() []byte { return d.raw }

func (d *DynamicResponse) String() string { return string(d.raw) }
