package shuttle

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/heroku/slog"
	metrics "github.com/rcrowley/go-metrics"
)

// StatsSourceKey is added to every stats line when a source is configured.
const StatsSourceKey = "splunk_shuttle_stats_source"

// Percentile info for timers. These 2 arrays need to match length and
// positions are relevant to each other.
var (
	percentiles     = []float64{0.75, 0.95, 0.99}
	percentileNames = []string{"p75", "p95", "p99"}
)

// sec renders t, in ns, as seconds with μs precision
func sec(t float64) string {
	return fmt.Sprintf("%.6f", t/float64(time.Second))
}

// MetricsReporter periodically writes the registry out as one logfmt line.
// Counters are reported as the change since the previous line; drops and
// lost envelopes are reported the same way and reset each time.
type MetricsReporter struct {
	registry    metrics.Registry
	source      string
	logger      *log.Logger
	drops, lost *Counter
	lastCounts  map[string]int64
	done        chan struct{}
	once        sync.Once
}

// NewMetricsReporter returns a reporter for s's registry and counters.
func NewMetricsReporter(s *Shuttle, source string, l *log.Logger) *MetricsReporter {
	return &MetricsReporter{
		registry:   s.MetricsRegistry,
		source:     source,
		logger:     orDiscard(l),
		drops:      s.Drops,
		lost:       s.Lost,
		lastCounts: make(map[string]int64),
		done:       make(chan struct{}),
	}
}

// Emit writes a stats line every d until Stop is called. A zero d disables
// reporting.
func (r *MetricsReporter) Emit(d time.Duration) {
	if d <= 0 {
		return
	}
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.logger.Println(r.Snapshot())
		case <-r.done:
			r.logger.Println(r.Snapshot())
			return
		}
	}
}

// Stop makes Emit write one last line and return.
func (r *MetricsReporter) Stop() {
	r.once.Do(func() { close(r.done) })
}

func (r *MetricsReporter) countDifference(ctx slog.Context, name string, c int64) {
	name += ".count"
	ctx[name] = c - r.lastCounts[name]
	r.lastCounts[name] = c
}

// Snapshot collects the current values into a slog.Context. It isn't safe to
// call concurrently with Emit.
func (r *MetricsReporter) Snapshot() slog.Context {
	ctx := slog.Context{}
	if r.source != "" {
		ctx[StatsSourceKey] = r.source
	}

	drops, _ := r.drops.ReadAndReset()
	lost, _ := r.lost.ReadAndReset()
	ctx["envelopes.dropped"] = drops
	ctx["envelopes.lost"] = lost

	r.registry.Each(func(name string, i interface{}) {
		switch metric := i.(type) {
		case metrics.Counter:
			r.countDifference(ctx, name, metric.Count())
		case metrics.Gauge:
			ctx[name] = metric.Value()
		case metrics.Timer:
			s := metric.Snapshot()
			ps := s.Percentiles(percentiles)
			r.countDifference(ctx, name, s.Count())
			ctx[name+".min"] = sec(float64(s.Min()))
			ctx[name+".max"] = sec(float64(s.Max()))
			ctx[name+".mean"] = sec(s.Mean())
			for i, pn := range percentileNames {
				ctx[name+"."+pn] = sec(ps[i])
			}
			ctx[name+".rate.1min"] = fmt.Sprintf("%.3f", s.Rate1())
		}
	})
	return ctx
}
