package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// PipelineCollector exposes trajectory pipeline and converter metrics.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	RunsTotal     *prometheus.CounterVec
	SamplesTotal  *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	CacheLookups  *prometheus.CounterVec
	ConvertErrors prometheus.Counter
}

// NewPipelineCollector registers pipeline metrics against the provided registerer.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trajectory_runs_total",
		Help: "Pipeline runs, labeled by outcome.",
	}, []string{"outcome"}), "trajectory_runs_total")
	if err != nil {
		return nil, err
	}

	samples, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trajectory_samples_total",
		Help: "Samples seen by the sample filter, labeled by disposition (accepted or rejected).",
	}, []string{"disposition"}), "trajectory_samples_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trajectory_run_duration_seconds",
		Help:    "Duration of a full pipeline run from release to scene install.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "trajectory_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	lookups, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "converter_cache_lookups_total",
		Help: "Converter response cache lookups, labeled by result (hit or miss).",
	}, []string{"result"}), "converter_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	convertErrors, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "converter_errors_total",
		Help: "Failed calls to the file conversion service.",
	}), "converter_errors_total")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:      gatherer,
		RunsTotal:     runs,
		SamplesTotal:  samples,
		RunDuration:   duration,
		CacheLookups:  lookups,
		ConvertErrors: convertErrors,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PipelineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun records one pipeline run.
func (c *PipelineCollector) ObserveRun(d time.Duration, accepted, rejected int, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	if c.RunsTotal != nil {
		c.RunsTotal.WithLabelValues(outcome).Inc()
	}
	if c.SamplesTotal != nil {
		c.SamplesTotal.WithLabelValues("accepted").Add(float64(accepted))
		c.SamplesTotal.WithLabelValues("rejected").Add(float64(rejected))
	}
	if c.RunDuration != nil {
		c.RunDuration.Observe(d.Seconds())
	}
}

// ObserveCacheLookup records a converter cache hit or miss.
func (c *PipelineCollector) ObserveCacheLookup(hit bool) {
	if c == nil || c.CacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// IncConvertErrors increments the converter failure counter.
func (c *PipelineCollector) IncConvertErrors() {
	if c == nil || c.ConvertErrors == nil {
		return
	}
	c.ConvertErrors.Inc()
}
