package shuttle

import (
	"log"

	metrics "github.com/rcrowley/go-metrics"
)

// Flusher runs one flush: take a connection, format the batch, deliver it.
// It's safe for concurrent use with distinct batches.
type Flusher struct {
	formatter *Formatter
	outlet    *HECOutlet
	errLogger *log.Logger
}

// NewFlusher validates config and builds the formatter and outlet for it.
func NewFlusher(config Config, mRegistry metrics.Registry, logger, errLogger *log.Logger) (*Flusher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	mode, err := config.Mode()
	if err != nil {
		return nil, err
	}
	return &Flusher{
		formatter: NewFormatter(mode, mRegistry, errLogger),
		outlet:    NewHECOutlet(config, mode, mRegistry, logger, errLogger),
		errLogger: orDiscard(errLogger),
	}, nil
}

// Flush delivers batch through up. A batch that can't be formatted returns a
// *FormatError together with PermanentFailure, since it will never format.
// When no connection is available nothing is formatted or sent and the
// outcome is Retry.
func (f *Flusher) Flush(batch []byte, up Upstream) (Outcome, error) {
	conn, err := up.Acquire()
	if err != nil {
		f.errLogger.Printf("at=flush outcome=%s error=%q\n", Retry, err)
		return Retry, nil
	}
	defer up.Release(conn)

	p, err := f.formatter.Format(batch)
	if err != nil {
		f.errLogger.Printf("at=flush outcome=%s error=%q\n", PermanentFailure, err)
		return PermanentFailure, err
	}
	if p.Records() == 0 {
		p.Release()
		return Success, nil
	}

	return f.outlet.Deliver(p, conn), nil
}
