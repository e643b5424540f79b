package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// ConfigCollector bundles Prometheus metrics for the configuration service,
// the solver and the lock layer, and provides helpers to wire them into gRPC
// servers and HTTP handlers.
type ConfigCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	PropagationIterations prometheus.Histogram
	PropagationDuration   prometheus.Histogram
	ConvergenceFailures   prometheus.Counter

	LockAttempts *prometheus.CounterVec
	LockedParams *prometheus.GaugeVec
	Radios       prometheus.Gauge
}

// NewConfigCollector registers metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil. Registering twice
// against the same registry returns the existing collectors.
func NewConfigCollector(reg prometheus.Registerer) (*ConfigCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "configsvc_requests_total",
		Help: "Total number of handled configuration RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "configsvc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "configsvc_request_duration_seconds",
		Help:    "Configuration RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "configsvc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	iterations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "csp_propagation_iterations",
		Help:    "Iterations needed by a constraint propagation to reach its fixed point.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100, 500, 1000},
	}), "csp_propagation_iterations")
	if err != nil {
		return nil, err
	}

	propDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "csp_propagation_duration_seconds",
		Help:    "Wall time of one constraint propagation.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "csp_propagation_duration_seconds")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "csp_convergence_failures_total",
		Help: "Propagations that exhausted their iteration budget.",
	}), "csp_convergence_failures_total")
	if err != nil {
		return nil, err
	}

	attempts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "config_lock_attempts_total",
		Help: "Lock attempts, labeled by radio, parameter and result (locked or rejected).",
	}, []string{"radio", "param", "result"}), "config_lock_attempts_total")
	if err != nil {
		return nil, err
	}

	locked, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "config_locked_params",
		Help: "Parameters currently locked, per radio.",
	}, []string{"radio"}), "config_locked_params")
	if err != nil {
		return nil, err
	}

	radios, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emulator_radios",
		Help: "Current number of emulated radios in the knowledge base.",
	}), "emulator_radios")
	if err != nil {
		return nil, err
	}

	return &ConfigCollector{
		gatherer:              gatherer,
		RPCRequests:           requests,
		RPCDurations:          durations,
		PropagationIterations: iterations,
		PropagationDuration:   propDuration,
		ConvergenceFailures:   failures,
		LockAttempts:          attempts,
		LockedParams:          locked,
		Radios:                radios,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ConfigCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *ConfigCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ConfigCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObservePropagation records one solver propagation. It satisfies
// csp.PropagationObserver.
func (c *ConfigCollector) ObservePropagation(iterations int, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	if c.PropagationIterations != nil {
		c.PropagationIterations.Observe(float64(iterations))
	}
	if c.PropagationDuration != nil {
		c.PropagationDuration.Observe(elapsed.Seconds())
	}
	if err != nil && c.ConvergenceFailures != nil {
		c.ConvergenceFailures.Inc()
	}
}

// SetRadioCount updates the radio gauge from knowledge base mutators.
func (c *ConfigCollector) SetRadioCount(n int) {
	if c == nil || c.Radios == nil {
		return
	}
	c.Radios.Set(float64(n))
}

// ForRadio returns a lock recorder that labels every sample with radio.
func (c *ConfigCollector) ForRadio(radio string) *RadioRecorder {
	return &RadioRecorder{c: c, radio: radio}
}

// RadioRecorder is the per-radio view of a ConfigCollector. It satisfies
// configurator.MetricsRecorder.
type RadioRecorder struct {
	c     *ConfigCollector
	radio string
}

// ObserveLock counts one lock attempt.
func (r *RadioRecorder) ObserveLock(param string, locked bool) {
	if r == nil || r.c == nil || r.c.LockAttempts == nil {
		return
	}
	result := "rejected"
	if locked {
		result = "locked"
	}
	r.c.LockAttempts.WithLabelValues(r.radio, param, result).Inc()
}

// SetLockedParams sets the number of locked parameters of the radio.
func (r *RadioRecorder) SetLockedParams(n int) {
	if r == nil || r.c == nil || r.c.LockedParams == nil {
		return
	}
	r.c.LockedParams.WithLabelValues(r.radio).Set(float64(n))
}

// Forget drops the per-radio series once a radio is deleted.
func (r *RadioRecorder) Forget() {
	if r == nil || r.c == nil {
		return
	}
	if r.c.LockedParams != nil {
		r.c.LockedParams.DeleteLabelValues(r.radio)
	}
	if r.c.LockAttempts != nil {
		r.c.LockAttempts.DeletePartialMatch(prometheus.Labels{"radio": r.radio})
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
