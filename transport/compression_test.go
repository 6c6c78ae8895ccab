package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressBodyPassesThroughWhenDisabled(t *testing.T) {
	cfg := Bind(GlobalConfiguration{}, nil)
	body := bytes.NewReader([]byte("plain"))

	out, err := compressBody(cfg, body)
	require.NoError(t, err)
	assert.Same(t, io.Reader(body), out)
}

func TestCompressBodyReturnsNilForNilBody(t *testing.T) {
	cfg := Bind(GlobalConfiguration{HTTPCompression: true}, nil)
	out, err := compressBody(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCompressBodyGzipEncodesWhenEnabled(t *testing.T) {
	cfg := Bind(GlobalConfiguration{HTTPCompression: true}, nil)
	out, err := compressBody(cfg, bytes.NewReader([]byte(`{"hello":"world"}`)))
	require.NoError(t, err)

	r, err := gzip.NewReader(out)
	require.NoError(t, err)
	defer r.Close()

	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(decoded))
}
