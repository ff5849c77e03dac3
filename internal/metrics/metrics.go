// Package metrics exports intake and upload measurements to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attach-go/internal/intake"
)

const namespace = "attach"

// Observer implements intake.Observer with Prometheus collectors.
type Observer struct {
	outcomes       *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadedBytes  prometheus.Counter
	inFlight       prometheus.Gauge
}

var _ intake.Observer = (*Observer)(nil)

// NewObserver registers the intake collectors with reg. Collectors that are
// already registered are reused, so several observers may share a registry.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_outcomes_total",
			Help:      "Intake attempts by terminal status and skip reason.",
		}, []string{"status", "reason"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Latency of uploads to the media host.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully uploaded.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uploads_in_flight",
			Help:      "Number of uploads currently running.",
		}),
	}

	var err error
	if o.outcomes, err = register(reg, o.outcomes); err != nil {
		return nil, err
	}
	if o.uploadDuration, err = register(reg, o.uploadDuration); err != nil {
		return nil, err
	}
	if o.uploadedBytes, err = register(reg, o.uploadedBytes); err != nil {
		return nil, err
	}
	if o.inFlight, err = register(reg, o.inFlight); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg, returning the existing collector of the same
// type when one with the same descriptor is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("registering collector: %w", err)
	}
	return c, nil
}

func (o *Observer) ObserveOutcome(out intake.Outcome) {
	if o == nil {
		return
	}
	reason := string(out.Reason)
	if out.Status == intake.StatusFailed {
		reason = string(out.Kind)
	}
	o.outcomes.WithLabelValues(string(out.Status), reason).Inc()
}

func (o *Observer) ObserveUpload(elapsed time.Duration, size int64, err error) {
	if o == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	o.uploadDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	if err == nil && size > 0 {
		o.uploadedBytes.Add(float64(size))
	}
}

func (o *Observer) UploadsInFlight(delta int) {
	if o == nil {
		return
	}
	o.inFlight.Add(float64(delta))
}

// Serve exposes the metrics of gatherer at /metrics on addr until ctx is
// cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger intake.Logger) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = intake.NewNopLogger()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
