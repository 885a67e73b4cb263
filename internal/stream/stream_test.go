package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tokligence/chatrelay/internal/testutil"
)

func TestSSERoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	res, err := Pump(context.Background(), rec, testutil.NewScriptedStream(nil, "Hel", "lo", " world"), SSE{})
	if err != nil {
		t.Fatalf("Pump() error = %v", err)
	}
	want := "data: {\"content\": \"Hel\"}\n\n" +
		"data: {\"content\": \"lo\"}\n\n" +
		"data: {\"content\": \" world\"}\n\n" +
		"data: [DONE]\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
	if res.Outcome != OutcomeCompleted || res.Fragments != 3 || res.Bytes != int64(len(want)) {
		t.Fatalf("result = %+v", res)
	}
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/event-stream; charset=utf-8" {
		t.Fatalf("status = %d, headers = %v", rec.Code, rec.Header())
	}
	if rec.Header().Get("Cache-Control") != "no-cache" {
		t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
	if !rec.Flushed {
		t.Fatal("expected response to be flushed")
	}
}

func TestSSEEncodesJSONStrings(t *testing.T) {
	rec := httptest.NewRecorder()
	_, _ = Pump(context.Background(), rec, testutil.NewScriptedStream(nil, "a \"quote\"\n<b>&"), SSE{})
	want := "data: {\"content\": \"a \\\"quote\\\"\\n<b>&\"}\n\n"
	if !strings.HasPrefix(rec.Body.String(), want) {
		t.Fatalf("body = %q, want prefix %q", rec.Body.String(), want)
	}
}

func TestSSEMidStreamFailure(t *testing.T) {
	boom := errors.New("upstream reset")
	rec := httptest.NewRecorder()
	res, err := Pump(context.Background(), rec, testutil.NewScriptedStream(boom, "partial"), SSE{})
	if !errors.Is(err, boom) {
		t.Fatalf("Pump() error = %v, want %v", err, boom)
	}
	want := "data: {\"content\": \"partial\"}\n\ndata: {\"error\": \"Stream error occurred\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body.String(), want)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") || strings.Contains(rec.Body.String(), "reset") {
		t.Fatal("failure must not send [DONE] or leak the cause")
	}
	if res.Outcome != OutcomeAborted || res.Truncate {
		t.Fatalf("result = %+v", res)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 committed before failure", rec.Code)
	}
}

func TestEmptyStream(t *testing.T) {
	rec := httptest.NewRecorder()
	res, err := Pump(context.Background(), rec, testutil.NewScriptedStream(nil), SSE{})
	if err != nil || rec.Body.String() != "data: [DONE]\n\n" {
		t.Fatalf("Pump() = %q, %v", rec.Body.String(), err)
	}
	if res.FirstByte != 0 || res.Fragments != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestEmptyFragmentsSkipped(t *testing.T) {
	rec := httptest.NewRecorder()
	res, _ := Pump(context.Background(), rec, testutil.NewScriptedStream(nil, "", "x", ""), SSE{})
	if res.Fragments != 1 || strings.Count(rec.Body.String(), "data:") != 2 {
		t.Fatalf("body = %q, result = %+v", rec.Body.String(), res)
	}
}

func TestRawFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	res, err := Pump(context.Background(), rec, testutil.NewScriptedStream(nil, "Hel", "lo", " world"), Raw{})
	if err != nil {
		t.Fatalf("Pump() error = %v", err)
	}
	if rec.Body.String() != "Hello world" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/plain; charset=utf-8" || res.Outcome != OutcomeCompleted {
		t.Fatalf("headers = %v, result = %+v", rec.Header(), res)
	}
}

func TestRawFailureRequestsTruncation(t *testing.T) {
	boom := errors.New("reset")
	rec := httptest.NewRecorder()
	res, err := Pump(context.Background(), rec, testutil.NewScriptedStream(boom, "part"), Raw{})
	if !errors.Is(err, boom) {
		t.Fatalf("Pump() error = %v", err)
	}
	if rec.Body.String() != "part" || !res.Truncate || res.Outcome != OutcomeAborted {
		t.Fatalf("body = %q, result = %+v", rec.Body.String(), res)
	}
}

// failingWriter accepts limit bytes, then reports the peer as gone.
type failingWriter struct {
	header http.Header
	limit  int
	n      int
}

func (f *failingWriter) Header() http.Header { return f.header }
func (f *failingWriter) WriteHeader(int)     {}
func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n+len(p) > f.limit {
		return 0, errors.New("write: broken pipe")
	}
	f.n += len(p)
	return len(p), nil
}

func TestWriteFailureStopsPumping(t *testing.T) {
	src := testutil.NewScriptedStream(nil, "one", "two", "three")
	w := &failingWriter{header: http.Header{}, limit: len("data: {\"content\": \"one\"}\n\n")}
	res, err := Pump(context.Background(), w, src, SSE{})
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("Pump() error = %v, want write failure", err)
	}
	if res.Outcome != OutcomeClientGone || res.Fragments != 1 {
		t.Fatalf("result = %+v", res)
	}
	// "three" must never be pulled after the failed write of "two".
	if f, _ := src.Recv(); f != "three" {
		t.Fatalf("next fragment = %q, want three still pending", f)
	}
}

func TestCancelledContextIsClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	res, err := Pump(ctx, rec, testutil.NewScriptedStream(context.Canceled), SSE{})
	if !errors.Is(err, context.Canceled) || res.Outcome != OutcomeClientGone {
		t.Fatalf("Pump() = %+v, %v", res, err)
	}
	if strings.Contains(rec.Body.String(), "error") {
		t.Fatalf("no error event expected for a departed client, got %q", rec.Body.String())
	}
}

func TestParseFraming(t *testing.T) {
	tests := map[string]Framing{"": FramingSSE, "SSE": FramingSSE, "raw": FramingRaw, " chunked ": FramingRaw}
	for in, want := range tests {
		got, err := ParseFraming(in)
		if err != nil || got != want {
			t.Errorf("ParseFraming(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseFraming("websocket"); err == nil {
		t.Error("expected error for unknown framing")
	}
	if _, ok := NewFramer(FramingRaw).(Raw); !ok {
		t.Error("NewFramer(raw) should return Raw")
	}
	if _, ok := NewFramer(FramingSSE).(SSE); !ok {
		t.Error("NewFramer(sse) should return SSE")
	}
}
