package shuttle

import (
	"io"
	"log"
	"sync"

	metrics "github.com/rcrowley/go-metrics"
)

// Shuttle is the main entry point into the library
type Shuttle struct {
	config             Config
	LogEnvelopes       chan Envelope
	Reader             Reader
	Drops, Lost        *Counter
	MetricsRegistry    metrics.Registry
	Logger             *log.Logger
	ErrLogger          *log.Logger
	deliverableBatches chan Batch
	upstream           Upstream
	flusher            *Flusher
	bWaiter, oWaiter   *sync.WaitGroup
}

// NewShuttle returns a properly constructed Shuttle with a given config
func NewShuttle(config Config) *Shuttle {
	le := make(chan Envelope, config.FrontBuff)
	mr := metrics.NewRegistry()

	return &Shuttle{
		config:             config,
		LogEnvelopes:       le,
		Reader:             NewReader(le, mr),
		Drops:              NewCounter(),
		Lost:               NewCounter(),
		MetricsRegistry:    mr,
		Logger:             Logger,
		ErrLogger:          ErrLogger,
		deliverableBatches: make(chan Batch, config.BackBuff),
		oWaiter:            new(sync.WaitGroup),
		bWaiter:            new(sync.WaitGroup),
	}
}

// Launch a shuttle by spawing it's outlets and batchers. Invalid
// configuration is reported here, before anything is started.
func (s *Shuttle) Launch() error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	flusher, err := NewFlusher(s.config, s.MetricsRegistry, s.Logger, s.ErrLogger)
	if err != nil {
		return err
	}
	s.flusher = flusher
	if s.upstream == nil {
		s.upstream = NewHTTPUpstream(s.config)
	}

	s.startOutlets()
	s.startBatchers()
	return nil
}

// startOutlets launches config.NumOutlets number of outlets. When the batch
// channel is closed the outlets will finish up their output and exit.
func (s *Shuttle) startOutlets() {
	for i := 0; i < s.config.NumOutlets; i++ {
		s.oWaiter.Add(1)
		go func() {
			defer s.oWaiter.Done()
			outlet := NewOutlet(s.config, s.flusher, s.upstream, s.Lost, s.MetricsRegistry, s.ErrLogger, s.deliverableBatches)
			outlet.Outlet()
		}()
	}
}

// startBatchers starts config.NumBatchers number of batchers. When the
// envelope channel is closed the batchers will finish up and exit.
func (s *Shuttle) startBatchers() {
	for i := 0; i < s.config.NumBatchers; i++ {
		s.bWaiter.Add(1)
		go func() {
			defer s.bWaiter.Done()
			batcher := NewBatcher(s.config.BatchSize, s.config.WaitDuration, s.Drops, s.MetricsRegistry, s.LogEnvelopes, s.deliverableBatches)
			batcher.Batch()
		}()
	}
}

// ReadEnvelopes reads envelopes from rc until it's exhausted. A truncated
// stream is logged and returned.
func (s *Shuttle) ReadEnvelopes(rc io.ReadCloser) error {
	err := s.Reader.Read(rc)
	if err != nil {
		s.ErrLogger.Printf("at=read error=%q\n", err)
	}
	return err
}

// Land gracefully terminates the shuttle instance, ensuring that anything
// read is batched and delivered. Don't read more envelopes after calling it.
func (s *Shuttle) Land() {
	close(s.LogEnvelopes)       // Close the envelope channel, all of the batchers will stop once they are done
	s.bWaiter.Wait()            // Wait for them to be done
	close(s.deliverableBatches) // Close the batch channel, all of the outlets will stop once they are done
	s.oWaiter.Wait()            // Wait for them to be done

	if s.config.Verbose {
		s.Logger.Printf("at=land drops=%d lost=%d\n", s.Drops.AllTime(), s.Lost.AllTime())
	}
}
