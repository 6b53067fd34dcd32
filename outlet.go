package shuttle

import (
	"log"
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// RetryFormat is the format string for flush attempts that didn't succeed
const RetryFormat = "at=flush retry=%t batch=%q msgcount=%d inbox.length=%d attempts=%d outcome=%s error=%q\n"

// Outlet takes batches off the inbox and flushes them, retrying batches that
// come back with a Retry outcome up to maxAttempts times with a linear
// backoff. Batches that fail permanently, or run out of attempts, are lost.
type Outlet struct {
	inbox       <-chan Batch
	flusher     *Flusher
	upstream    Upstream
	maxAttempts int
	retrySleep  time.Duration
	lost        *Counter
	errLogger   *log.Logger
	sleep       func(time.Duration)

	inboxLengthGauge metrics.Gauge   // outstanding batches, updated on every failed attempt
	msgLostCount     metrics.Counter // envelopes that were given up on
}

// NewOutlet returns an Outlet for the given shuttle components.
func NewOutlet(config Config, flusher *Flusher, upstream Upstream, lost *Counter, mRegistry metrics.Registry, errLogger *log.Logger, inbox <-chan Batch) *Outlet {
	return &Outlet{
		inbox:            inbox,
		flusher:          flusher,
		upstream:         upstream,
		maxAttempts:      config.MaxAttempts,
		retrySleep:       config.RetrySleep,
		lost:             lost,
		errLogger:        orDiscard(errLogger),
		sleep:            time.Sleep,
		inboxLengthGauge: metrics.GetOrRegisterGauge("outlet.inbox.length", mRegistry),
		msgLostCount:     metrics.GetOrRegisterCounter("msg.lost", mRegistry),
	}
}

// Outlet flushes batches until the inbox is closed.
func (o *Outlet) Outlet() {
	for batch := range o.inbox {
		o.retryFlush(batch)
	}
}

func (o *Outlet) retryFlush(batch Batch) {
	msgCount := batch.MsgCount()

	for attempts := 1; attempts <= o.maxAttempts; attempts++ {
		outcome, err := o.flusher.Flush(batch.Bytes(), o.upstream)
		if outcome == Success {
			return
		}

		inboxLength := len(o.inbox)
		o.inboxLengthGauge.Update(int64(inboxLength))

		if outcome == Retry && attempts < o.maxAttempts {
			o.errLogger.Printf(RetryFormat, true, batch.UUID, msgCount, inboxLength, attempts, outcome, errString(err))
			o.sleep(time.Duration(attempts) * o.retrySleep)
			continue
		}

		o.errLogger.Printf(RetryFormat, false, batch.UUID, msgCount, inboxLength, attempts, outcome, errString(err))
		o.lost.Add(msgCount)
		o.msgLostCount.Inc(int64(msgCount))
		return
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
