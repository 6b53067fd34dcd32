package shuttle

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// Batcher coalesces envelopes coming via inEnvelopes into batches, which are
// sent out via outBatches. This is where flush boundaries are decided.
type Batcher struct {
	inEnvelopes <-chan Envelope // Where I get the envelopes to batch from
	outBatches  chan<- Batch    // Where I send completed batches to
	timeout     time.Duration   // How long once we have an envelope before we need to flush the batch
	batchSize   int             // The size of the batches
	batchMsgCountMetric,
	batchMsgDroppedMetric metrics.Counter
	batchFillTimeMetric metrics.Timer
	drops               *Counter
}

// NewBatcher created an empty Batcher from the provided channels / variables
func NewBatcher(batchSize int, timeout time.Duration, drops *Counter, mRegistry metrics.Registry, inEnvelopes <-chan Envelope, outBatches chan<- Batch) Batcher {
	return Batcher{
		inEnvelopes:           inEnvelopes,
		outBatches:            outBatches,
		timeout:               timeout,
		batchSize:             batchSize,
		batchMsgCountMetric:   metrics.GetOrRegisterCounter("batch.msg.count", mRegistry),
		batchMsgDroppedMetric: metrics.GetOrRegisterCounter("batch.msg.dropped", mRegistry),
		batchFillTimeMetric:   metrics.GetOrRegisterTimer("batch.fill.time", mRegistry),
		drops:                 drops,
	}
}

// Batch loops filling batches until inEnvelopes is closed. If outBatches is
// full the batch is dropped and drops is incremented by its size.
func (batcher Batcher) Batch() {
	for {
		closeDown, batch := batcher.fillBatch()

		if msgCount := batch.MsgCount(); msgCount > 0 {
			select {
			case batcher.outBatches <- batch:
				batcher.batchMsgCountMetric.Inc(int64(msgCount))
			default:
				batcher.batchMsgDroppedMetric.Inc(int64(msgCount))
				batcher.drops.Add(msgCount)
			}
		}

		if closeDown {
			return
		}
	}
}

// fillBatch returns once the batch is full, once the timeout has passed since
// the first envelope arrived, or once the input is closed. The boolean is
// true when the input is closed.
func (batcher Batcher) fillBatch() (bool, Batch) {
	batch := NewBatch(batcher.batchSize)
	var timeout <-chan time.Time // nil until the first envelope arrives

	for {
		select {
		case <-timeout:
			return false, batch

		case e, open := <-batcher.inEnvelopes:
			if !open {
				return true, batch
			}

			if timeout == nil {
				defer func(t time.Time) { batcher.batchFillTimeMetric.UpdateSince(t) }(time.Now())
				timer := time.NewTimer(batcher.timeout)
				defer timer.Stop()
				timeout = timer.C
			}

			batch.Add(e)
			if batch.MsgCount() >= batcher.batchSize {
				return false, batch
			}
		}
	}
}
