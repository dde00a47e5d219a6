// Package json provides pooled JSON encoding and decoding built on goccy/go-json.
// Encoders, decoders and scratch buffers are recycled to keep per-page response
// parsing and dataset serialization off the allocator's hot path.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a buffer from the pool
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// GetDecoder returns a decoder reading from r. goccy decoders are cheap to
// construct, so no pooling is attempted beyond the buffer reuse above.
func GetDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// GetEncoder returns an encoder writing to w
func GetEncoder(w io.Writer) *gojson.Encoder {
	return gojson.NewEncoder(w)
}

// Marshal marshals v using the pooled encoder
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal unmarshals data into v
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent marshals v with indentation
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalToWriter marshals v directly to a writer
func MarshalToWriter(w io.Writer, v interface{}) error {
	return gojson.NewEncoder(w).Encode(v)
}

// MarshalToBuffer marshals v into a pooled buffer. The caller must return the
// buffer with PutBuffer once the bytes have been consumed.
func MarshalToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := GetBuffer()
	if err := gojson.NewEncoder(buf).Encode(v); err != nil {
		PutBuffer(buf)
		return nil, err
	}
	return buf, nil
}
