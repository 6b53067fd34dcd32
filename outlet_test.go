package shuttle

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// flakyCollector fails the first failures requests with status, then
// accepts.
type flakyCollector struct {
	called   int32
	failures int32
	status   int
}

func (fc *flakyCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if atomic.AddInt32(&fc.called, 1) <= fc.failures {
		w.WriteHeader(fc.status)
	}
}

func newTestRetryOutlet(t *testing.T, config Config, up Upstream) (*Outlet, *Counter, metrics.Registry, *[]time.Duration) {
	t.Helper()
	mr := metrics.NewRegistry()
	f, err := NewFlusher(config, mr, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	lost := NewCounter()
	outlet := NewOutlet(config, f, up, lost, mr, nil, nil)
	var sleeps []time.Duration
	outlet.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return outlet, lost, mr, &sleeps
}

func testBatch(n int) Batch {
	b := NewBatch(n)
	for i := 0; i < n; i++ {
		b.Add(NewEnvelope(batchOf(kv("n", i)), time.Now()))
	}
	return b
}

func TestOutletRetriesThenSucceeds(t *testing.T) {
	fc := &flakyCollector{failures: 2, status: http.StatusServiceUnavailable}
	ts := newServer(fc)
	defer ts.Close()

	config := newTestConfig()
	config.LogsURL = ts.URL
	config.RetrySleep = 10 * time.Millisecond
	outlet, lost, _, sleeps := newTestRetryOutlet(t, config, &testUpstream{doer: ts.Client()})

	outlet.retryFlush(testBatch(2))

	if called := atomic.LoadInt32(&fc.called); called != 3 {
		t.Errorf("expected 3 requests, got %d", called)
	}
	if l := lost.Read(); l != 0 {
		t.Errorf("lost != 0, == %d", l)
	}
	expected := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*sleeps) != 2 || (*sleeps)[0] != expected[0] || (*sleeps)[1] != expected[1] {
		t.Errorf("expected sleeps %v, got %v", expected, *sleeps)
	}
}

func TestOutletRetryMax(t *testing.T) {
	config := newTestConfig()
	fc := &flakyCollector{failures: int32(config.MaxAttempts), status: http.StatusServiceUnavailable}
	ts := newServer(fc)
	defer ts.Close()
	config.LogsURL = ts.URL

	outlet, lost, mr, _ := newTestRetryOutlet(t, config, &testUpstream{doer: ts.Client()})
	l, logs := newCaptureLogger()
	outlet.errLogger = l

	outlet.retryFlush(testBatch(2))

	if called := atomic.LoadInt32(&fc.called); int(called) != config.MaxAttempts {
		t.Errorf("expected %d requests, got %d", config.MaxAttempts, called)
	}
	if l := lost.Read(); l != 2 {
		t.Errorf("lost != 2, == %d", l)
	}
	if l := metrics.GetOrRegisterCounter("msg.lost", mr).Count(); l != 2 {
		t.Errorf("msg.lost != 2, == %d", l)
	}
	if !containsAll(logs.String(), "retry=false", "outcome=retry", "attempts=3") {
		t.Errorf("unexpected log output: %q", logs.String())
	}
}

func TestOutletPermanentFailureNotRetried(t *testing.T) {
	fc := &flakyCollector{failures: 100, status: http.StatusBadRequest}
	ts := newServer(fc)
	defer ts.Close()

	config := newTestConfig()
	config.LogsURL = ts.URL
	outlet, lost, _, sleeps := newTestRetryOutlet(t, config, &testUpstream{doer: ts.Client()})

	outlet.retryFlush(testBatch(3))

	if called := atomic.LoadInt32(&fc.called); called != 1 {
		t.Errorf("expected 1 request, got %d", called)
	}
	if l := lost.Read(); l != 3 {
		t.Errorf("lost != 3, == %d", l)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", *sleeps)
	}
}

func TestOutletDrainsInbox(t *testing.T) {
	fc := &flakyCollector{}
	ts := newServer(fc)
	defer ts.Close()

	config := newTestConfig()
	config.LogsURL = ts.URL
	mr := metrics.NewRegistry()
	f, err := NewFlusher(config, mr, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	inbox := make(chan Batch, 3)
	inbox <- testBatch(1)
	inbox <- testBatch(1)
	inbox <- testBatch(1)
	close(inbox)

	NewOutlet(config, f, &testUpstream{doer: ts.Client()}, NewCounter(), mr, nil, inbox).Outlet()

	if called := atomic.LoadInt32(&fc.called); called != 3 {
		t.Errorf("expected 3 requests, got %d", called)
	}
}
