package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tridentframe/launcher/internal/domain"
)

// Prometheus implements Collector on a private registry.
type Prometheus struct {
	transitions  *prometheus.CounterVec
	launches     *prometheus.CounterVec
	exits        *prometheus.CounterVec
	stopDuration *prometheus.HistogramVec
	readiness    *prometheus.HistogramVec
	state        *prometheus.GaugeVec
	registry     *prometheus.Registry
}

// NewPrometheus creates a collector. namespace defaults to "launcher".
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "launcher"
	}

	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_state_transitions_total",
		Help:      "Backend supervisor state transitions",
	}, []string{"from_state", "to_state"})

	p.launches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_launches_total",
		Help:      "Backend launch attempts by rule and outcome",
	}, []string{"rule", "result"})

	p.exits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_exits_total",
		Help:      "Backend process exits",
	}, []string{"expected", "exit_code"})

	p.stopDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_stop_duration_seconds",
		Help:      "Time from stop request until the backend was gone",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"forced"})

	p.readiness = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_readiness_seconds",
		Help:      "Time from launch until the backend accepted connections",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"ready"})

	p.state = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_state",
		Help:      "1 for the supervisor's current state, 0 otherwise",
	}, []string{"state"})

	p.registry.MustRegister(
		p.transitions,
		p.launches,
		p.exits,
		p.stopDuration,
		p.readiness,
		p.state,
	)

	p.setState(domain.StateNotStarted)
	return p
}

func (p *Prometheus) StateTransition(from, to domain.SupervisorState) {
	p.transitions.WithLabelValues(string(from), string(to)).Inc()
	p.setState(to)
}

func (p *Prometheus) LaunchAttempt(rule string, code domain.ErrorCode) {
	result := "ok"
	if code != "" {
		result = string(code)
	}
	if rule == "" {
		rule = "none"
	}
	p.launches.WithLabelValues(rule, result).Inc()
}

func (p *Prometheus) BackendExit(expected bool, exitCode int) {
	p.exits.WithLabelValues(strconv.FormatBool(expected), strconv.Itoa(exitCode)).Inc()
}

func (p *Prometheus) StopDuration(d time.Duration, forced bool) {
	p.stopDuration.WithLabelValues(strconv.FormatBool(forced)).Observe(d.Seconds())
}

func (p *Prometheus) ReadinessWait(d time.Duration, ready bool) {
	p.readiness.WithLabelValues(strconv.FormatBool(ready)).Observe(d.Seconds())
}

func (p *Prometheus) setState(s domain.SupervisorState) {
	for _, st := range []domain.SupervisorState{
		domain.StateNotStarted, domain.StateStarting, domain.StateRunning, domain.StateStopped,
	} {
		v := 0.0
		if st == s {
			v = 1
		}
		p.state.WithLabelValues(string(st)).Set(v)
	}
}

// Registry exposes the private registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

var _ Collector = (*Prometheus)(nil)
