package lego

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// contextStats holds the counters of one Context. Every Context has its own
// set so that several contexts in one process do not collide.
type contextStats struct {
	set         *metrics.Set
	built       *metrics.Counter
	buildErrors *metrics.Counter
	hostCalls   *metrics.Counter
	traps       *metrics.Counter
	codeBytes   *metrics.Counter
}

func newContextStats(cacheHits func() uint64) *contextStats {
	s := metrics.NewSet()
	st := &contextStats{
		set:         s,
		built:       s.NewCounter(`lego_functions_built_total`),
		buildErrors: s.NewCounter(`lego_build_errors_total`),
		hostCalls:   s.NewCounter(`lego_host_calls_total`),
		traps:       s.NewCounter(`lego_traps_total`),
		codeBytes:   s.NewCounter(`lego_code_bytes_total`),
	}
	s.NewGauge(`lego_code_cache_hits_total`, func() float64 {
		return float64(cacheHits())
	})
	return st
}

// WriteMetrics writes the counters of the Context in Prometheus text format
func (c *Context) WriteMetrics(w io.Writer) {
	c.stats.set.WritePrometheus(w)
}
