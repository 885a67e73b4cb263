// Package smooth paces a text stream for a steadier perceived typing rate.
//
// Upstream text is buffered and re-emitted one word (plus its trailing
// whitespace) at a time, with a short delay between emissions. Text without
// whitespace is not held back indefinitely: it is released once it reaches
// MaxHoldBytes or once no boundary arrived within the hold window.
// Concatenating every emitted fragment always yields exactly the upstream text.
package smooth

import (
	"context"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// DefaultDelay is the pause between two emitted fragments.
	DefaultDelay = 10 * time.Millisecond
	// MaxHoldBytes caps how much boundary-free text is buffered.
	MaxHoldBytes = 32
	// MinHold is the shortest time boundary-free text waits for whitespace.
	MinHold = 40 * time.Millisecond
)

var wordBoundary = regexp.MustCompile(`\S+\s+`)

// Source is the upstream text stream; io.EOF marks normal exhaustion.
type Source interface {
	Recv() (string, error)
	Close() error
}

type item struct {
	text string
	err  error
}

// Stream re-chunks a Source on word boundaries.
type Stream struct {
	ctx     context.Context
	src     Source
	delay   time.Duration
	hold    time.Duration
	buf     string
	pending error // terminal upstream result, reported once buf is drained
	emitted bool
	expired bool

	startOnce sync.Once
	items     chan item
	quit      chan struct{}
	closeOnce sync.Once
}

// New wraps src. A non-positive delay disables pacing but keeps re-chunking.
func New(ctx context.Context, src Source, delay time.Duration) *Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	hold := delay
	if hold < MinHold {
		hold = MinHold
	}
	return &Stream{
		ctx:   ctx,
		src:   src,
		delay: delay,
		hold:  hold,
		items: make(chan item),
		quit:  make(chan struct{}),
	}
}

// Recv returns the next word-aligned fragment.
func (s *Stream) Recv() (string, error) {
	s.startOnce.Do(func() { go s.read() })
	for {
		if loc := wordBoundary.FindStringIndex(s.buf); loc != nil {
			return s.emit(loc[1])
		}
		if len(s.buf) >= MaxHoldBytes {
			if n := completeRunes(s.buf); n > 0 {
				return s.emit(n)
			}
		}
		if s.pending != nil {
			if s.buf != "" {
				return s.emit(len(s.buf))
			}
			return "", s.pending
		}

		if err := s.wait(); err != nil {
			return "", err
		}
		if s.expired {
			s.expired = false
			if n := completeRunes(s.buf); n > 0 {
				return s.emit(n)
			}
		}
	}
}

// wait blocks for the next upstream item. With text already buffered it gives
// up after the hold window and sets expired.
func (s *Stream) wait() error {
	var timeout <-chan time.Time
	if s.buf != "" {
		t := time.NewTimer(s.hold)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case it := <-s.items:
		s.buf += it.text
		if it.err != nil {
			s.pending = it.err
		}
	case <-timeout:
		s.expired = true
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
	return nil
}

// read pulls the upstream into items until it fails or the stream is closed.
func (s *Stream) read() {
	for {
		text, err := s.src.Recv()
		select {
		case s.items <- item{text: text, err: err}:
		case <-s.quit:
			return
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Stream) emit(n int) (string, error) {
	if s.emitted && s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return "", s.ctx.Err()
		case <-t.C:
		}
	}
	out := s.buf[:n]
	s.buf = s.buf[n:]
	s.emitted = true
	return out, nil
}

// completeRunes returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completeRunes(b string) int {
	n := len(b)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRuneInString(b[i:]) {
			return n
		}
		return i
	}
	return n
}

// Close closes the upstream source.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	return s.src.Close()
}
