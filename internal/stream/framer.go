// Package stream serializes a fragment sequence onto an HTTP response.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInBand is returned by framers that cannot express a failure on the wire.
// The caller is expected to cut the connection instead.
var ErrNoInBand = errors.New("stream: framing has no in-band error representation")

// Framer writes fragments, the end-of-stream marker and failures in one wire format.
type Framer interface {
	ContentType() string
	Fragment(w io.Writer, text string) error
	Done(w io.Writer) error
	Fail(w io.Writer, cause error) error
}

// Framing names a wire format.
type Framing string

const (
	FramingSSE Framing = "sse"
	FramingRaw Framing = "raw"
)

// ParseFraming maps a configuration value to a Framing. Empty means SSE.
func ParseFraming(v string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "sse", "event-stream":
		return FramingSSE, nil
	case "raw", "chunked", "text":
		return FramingRaw, nil
	default:
		return "", fmt.Errorf("stream: unknown framing %q (want sse or raw)", v)
	}
}

// NewFramer returns the framer for f.
func NewFramer(f Framing) Framer {
	if f == FramingRaw {
		return Raw{}
	}
	return SSE{}
}

const (
	sseDone  = "data: [DONE]\n\n"
	sseError = "data: {\"error\": \"Stream error occurred\"}\n\n"
)

// SSE frames every fragment as `data: {"content": "..."}` and ends with `data: [DONE]`.
type SSE struct{}

func (SSE) ContentType() string { return "text/event-stream; charset=utf-8" }

func (SSE) Fragment(w io.Writer, text string) error {
	var buf bytes.Buffer
	buf.WriteString(`data: {"content": `)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(text); err != nil {
		return err
	}
	// Encode terminates with '\n'.
	buf.Truncate(buf.Len() - 1)
	buf.WriteString("}\n\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func (SSE) Done(w io.Writer) error {
	_, err := io.WriteString(w, sseDone)
	return err
}

// Fail writes a fixed error event; the cause is never exposed to the client.
func (SSE) Fail(w io.Writer, cause error) error {
	_, err := io.WriteString(w, sseError)
	return err
}

// Raw writes fragment bytes back to back, relying on chunked transfer encoding.
type Raw struct{}

func (Raw) ContentType() string { return "text/plain; charset=utf-8" }

func (Raw) Fragment(w io.Writer, text string) error {
	_, err := io.WriteString(w, text)
	return err
}

func (Raw) Done(w io.Writer) error { return nil }

func (Raw) Fail(w io.Writer, cause error) error { return ErrNoInBand }
