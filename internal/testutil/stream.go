package testutil

import (
	"io"
	"sync"
)

// ScriptedStream replays a fixed list of fragments, then ends with Err (or io.EOF).
type ScriptedStream struct {
	mu        sync.Mutex
	fragments []string
	err       error
	pos       int
	closed    bool
}

// NewScriptedStream builds a stream that yields frags in order and then err.
// A nil err ends the stream normally.
func NewScriptedStream(err error, frags ...string) *ScriptedStream {
	return &ScriptedStream{fragments: frags, err: err}
}

func (s *ScriptedStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < len(s.fragments) {
		f := s.fragments[s.pos]
		s.pos++
		return f, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *ScriptedStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Drain reads s until it fails and returns the fragments and the final error.
func Drain(s interface{ Recv() (string, error) }) ([]string, error) {
	var out []string
	for {
		frag, err := s.Recv()
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}
