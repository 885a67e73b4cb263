package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Source is a pull-based fragment sequence. Recv returns io.EOF at the end.
type Source interface {
	Recv() (string, error)
}

// Outcome is how a pumped stream ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeAborted    Outcome = "aborted"
	OutcomeClientGone Outcome = "client_gone"
)

// Result summarizes one pumped stream.
type Result struct {
	Fragments int
	Bytes     int64
	FirstByte time.Duration // zero when nothing was written
	Duration  time.Duration
	Outcome   Outcome
	// Truncate is set when the framer could not report an upstream failure
	// in-band and the connection should be cut.
	Truncate bool
}

// Pump commits a 200 response and copies src to w through f, flushing after
// every write. It returns the upstream error for aborted streams and the write
// error when the client went away.
func Pump(ctx context.Context, w http.ResponseWriter, src Source, f Framer) (Result, error) {
	start := time.Now()
	h := w.Header()
	h.Set("Content-Type", f.ContentType())
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	out := &countingWriter{w: w}
	rc := http.NewResponseController(w)
	res := Result{}
	flush := func() error {
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}
	finish := func(o Outcome) Result {
		res.Outcome = o
		res.Bytes = out.n
		res.Duration = time.Since(start)
		return res
	}

	// Push headers out before the first fragment is ready.
	if err := flush(); err != nil {
		return finish(OutcomeClientGone), err
	}

	for {
		text, err := src.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if werr := f.Done(out); werr != nil {
					return finish(OutcomeClientGone), werr
				}
				if werr := flush(); werr != nil {
					return finish(OutcomeClientGone), werr
				}
				return finish(OutcomeCompleted), nil
			}
			if ctx.Err() != nil {
				return finish(OutcomeClientGone), err
			}
			if ferr := f.Fail(out, err); ferr != nil {
				if !errors.Is(ferr, ErrNoInBand) {
					return finish(OutcomeClientGone), ferr
				}
				res.Truncate = true
			}
			_ = flush()
			return finish(OutcomeAborted), err
		}
		if text == "" {
			continue
		}
		if werr := f.Fragment(out, text); werr != nil {
			return finish(OutcomeClientGone), werr
		}
		if werr := flush(); werr != nil {
			return finish(OutcomeClientGone), werr
		}
		res.Fragments++
		if res.FirstByte == 0 {
			res.FirstByte = time.Since(start)
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
