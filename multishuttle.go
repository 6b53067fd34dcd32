package shuttle

import (
	"io"
	"sync"

	metrics "github.com/rcrowley/go-metrics"
)

// MultiShuttle duplicates envelopes read from a single input to a collection
// of underlying Shuttle instances, to deliver the same stream to multiple
// collectors.
type MultiShuttle struct {
	shuttles []*Shuttle
}

// NewMultiShuttle initializes and returns a new multishuttle.
func NewMultiShuttle(shuttles ...*Shuttle) *MultiShuttle {
	return &MultiShuttle{shuttles: shuttles}
}

// AddShuttle registers a shuttle to deliver envelopes. It must be called
// before Launch.
func (m *MultiShuttle) AddShuttle(s *Shuttle) {
	m.shuttles = append(m.shuttles, s)
}

// Shuttles returns the registered shuttles.
func (m *MultiShuttle) Shuttles() []*Shuttle {
	return m.shuttles
}

// Launch all the shuttles previously registered. If one fails to launch the
// ones already started are landed again.
func (m *MultiShuttle) Launch() error {
	for i, s := range m.shuttles {
		if err := s.Launch(); err != nil {
			for _, started := range m.shuttles[:i] {
				started.Land()
			}
			return err
		}
	}
	return nil
}

// ReadEnvelopes reads rc once and hands every envelope to every shuttle. It
// returns when rc is exhausted and every shuttle has taken the last envelope.
// Reader metrics are recorded in each shuttle's registry.
func (m *MultiShuttle) ReadEnvelopes(rc io.ReadCloser) error {
	if len(m.shuttles) == 0 {
		return rc.Close()
	}
	first := m.shuttles[0]

	fan := make(chan Envelope, first.config.FrontBuff)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range fan {
			for _, s := range m.shuttles {
				s.LogEnvelopes <- e
			}
		}
	}()

	registries := make([]metrics.Registry, 0, len(m.shuttles))
	for _, s := range m.shuttles {
		registries = append(registries, s.MetricsRegistry)
	}
	err := NewReader(fan, registries...).Read(rc)
	close(fan)
	wg.Wait()

	if err != nil {
		for _, s := range m.shuttles {
			s.ErrLogger.Printf("at=read error=%q\n", err)
		}
	}
	return err
}

// Land gracefully terminates all registered shuttles.
func (m *MultiShuttle) Land() {
	for _, s := range m.shuttles {
		s.Land()
	}
}
