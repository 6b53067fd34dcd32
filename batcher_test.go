package shuttle

import (
	"sync"
	"testing"
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

func produceEnvelopes(count int, c chan<- Envelope) {
	e := NewEnvelope(batchOf(kv("msg", "Dolor sit amet, consectetur adipiscing elit praesent ac magna justo.")), time.Now())
	for i := 0; i < count; i++ {
		c <- e
	}
}

func runBatcher(batchSize int, timeout time.Duration, in <-chan Envelope, out chan<- Batch, drops *Counter) *sync.WaitGroup {
	batcher := NewBatcher(batchSize, timeout, drops, metrics.NewRegistry(), in, out)
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		batcher.Batch()
	}()
	return wg
}

func TestBatcherFillsBySize(t *testing.T) {
	in := make(chan Envelope, 10)
	out := make(chan Batch, 10)
	wg := runBatcher(3, time.Hour, in, out, NewCounter())

	produceEnvelopes(7, in)
	close(in)
	wg.Wait()
	close(out)

	var sizes []int
	for b := range out {
		sizes = append(sizes, b.MsgCount())
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("expected batches of [3 3 1], got %v", sizes)
	}
}

func TestBatcherFlushesOnTimeout(t *testing.T) {
	in := make(chan Envelope, 10)
	out := make(chan Batch, 10)
	wg := runBatcher(100, 20*time.Millisecond, in, out, NewCounter())
	defer func() {
		close(in)
		wg.Wait()
	}()

	produceEnvelopes(2, in)

	select {
	case b := <-out:
		if b.MsgCount() != 2 {
			t.Errorf("expected 2 envelopes, got %d", b.MsgCount())
		}
		if recs, _ := readAll(t, b.Bytes()); len(recs) != 2 {
			t.Errorf("expected 2 records in batch bytes, got %d", len(recs))
		}
	case <-time.After(time.Second):
		t.Fatal("batch wasn't flushed after the wait duration")
	}
}

func TestBatcherDropsWhenOutboxFull(t *testing.T) {
	in := make(chan Envelope, 10)
	out := make(chan Batch) // unbuffered and never read
	drops := NewCounter()
	wg := runBatcher(2, time.Hour, in, out, drops)

	produceEnvelopes(4, in)
	close(in)
	wg.Wait()

	if d := drops.Read(); d != 4 {
		t.Errorf("expected 4 drops, got %d", d)
	}
}

func BenchmarkBatcher(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		in := make(chan Envelope, DefaultFrontBuff)
		out := make(chan Batch, DefaultBackBuff)
		go func() {
			for range out {
			}
		}()
		wg := runBatcher(DefaultBatchSize, DefaultWaitDuration, in, out, NewCounter())
		b.StartTimer()

		produceEnvelopes(10000, in)
		close(in)
		wg.Wait()
		close(out)
	}
}
