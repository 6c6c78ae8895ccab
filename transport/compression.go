package transport

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// compressBody gzip-encodes body when HTTPCompression is enabled (§4.2),
// handing the Invoker an already-compressed payload. Setting the
// Content-Encoding header on the outgoing request remains the Invoker's
// responsibility, since the core never touches the wire.
func compressBody(cfg *BoundConfiguration, body io.Reader) (io.Reader, error) {
	if !cfg.HTTPCompression || body == nil {
		return body, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := io.Copy(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}
