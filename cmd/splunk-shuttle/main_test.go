package main

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	shuttle "github.com/heroku/splunk-shuttle"
	"github.com/tinylib/msgp/msgp"
)

func encodedEnvelopes(n int) []byte {
	var b []byte
	for i := 0; i < n; i++ {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendInt64(b, 1000)
		b = msgp.AppendMapHeader(b, 1)
		b = msgp.AppendString(b, "msg")
		b = msgp.AppendString(b, "hi")
	}
	return b
}

func launchTestShuttle(t *testing.T, url string) *shuttle.MultiShuttle {
	t.Helper()
	config := shuttle.NewConfig()
	config.LogsURL = url
	config.NumOutlets = 1

	discard := log.New(io.Discard, "", 0)
	s := shuttle.NewShuttle(config)
	s.Logger, s.ErrLogger = discard, discard

	ms := shuttle.NewMultiShuttle(s)
	if err := ms.Launch(); err != nil {
		t.Fatalf("unexpected error launching: %s", err)
	}
	return ms
}

func TestRunExitCode(t *testing.T) {
	var called int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		atomic.AddInt32(&called, 1)
	}))
	defer ts.Close()

	input := encodedEnvelopes(2)

	ms := launchTestShuttle(t, ts.URL)
	if code := run(ms, io.NopCloser(bytes.NewReader(input)), nil); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if c := atomic.LoadInt32(&called); c == 0 {
		t.Error("expected the envelopes to be delivered")
	}

	atomic.StoreInt32(&called, 0)
	ms = launchTestShuttle(t, ts.URL)
	if code := run(ms, io.NopCloser(bytes.NewReader(input[:len(input)-2])), nil); code != 1 {
		t.Errorf("expected exit code 1 for truncated input, got %d", code)
	}
	if c := atomic.LoadInt32(&called); c == 0 {
		t.Error("expected the envelope read before the error to be delivered")
	}
}
