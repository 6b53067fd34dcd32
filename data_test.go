package shuttle

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/tinylib/msgp/msgp"
)

var testTime = EventTime{Sec: 1000, Nsec: 500000000}

// kv builds an ordered msgpack map from key/value pairs. Values may be
// anything msgp.AppendIntf takes, including another kv.
func kv(pairs ...interface{}) msgp.Raw {
	b := msgp.AppendMapHeader(nil, uint32(len(pairs)/2))
	for i := 0; i < len(pairs); i += 2 {
		b = msgp.AppendString(b, pairs[i].(string))
		var err error
		if b, err = msgp.AppendIntf(b, pairs[i+1]); err != nil {
			panic(err)
		}
	}
	return msgp.Raw(b)
}

// envelope appends a [EventTime, body] envelope to b.
func envelope(b []byte, t EventTime, body msgp.Raw) []byte {
	b = msgp.AppendArrayHeader(b, 2)
	ext := eventTimeExt(t)
	b, err := msgp.AppendExtension(b, &ext)
	if err != nil {
		panic(err)
	}
	return append(b, body...)
}

// batchOf builds a batch of envelopes all stamped with testTime.
func batchOf(bodies ...msgp.Raw) []byte {
	var b []byte
	for _, body := range bodies {
		b = envelope(b, testTime, body)
	}
	return b
}

func newTestConfig() Config {
	config := NewConfig()
	config.LogsURL = "http://localhost:8088"
	config.MaxAttempts = 3
	config.RetrySleep = time.Millisecond
	config.WaitDuration = 10 * time.Millisecond
	config.Timeout = time.Second
	return config
}

func newCaptureLogger() (*log.Logger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	return log.New(buf, "", 0), buf
}

type readCloser struct {
	io.Reader
	closed bool
}

func (r *readCloser) Close() error {
	r.closed = true
	return nil
}

func newServer(h http.Handler) *httptest.Server {
	return httptest.NewServer(h)
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
