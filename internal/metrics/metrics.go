// Package metrics holds the Prometheus instruments for extraction, defect
// detection and imports. Each Registry owns a private prometheus.Registry,
// so any number can coexist in one process.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Import row outcomes used as the status label.
const (
	StatusImported  = "imported"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// Registry holds all Prometheus metrics for the application. A nil
// *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	ExtractionsTotal *prometheus.CounterVec
	DefectsTotal     *prometheus.CounterVec
	ImportRowsTotal  *prometheus.CounterVec
	QualityScore     prometheus.Histogram
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	return &Registry{
		reg: reg,
		ExtractionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contaboo_extractions_total",
			Help: "Listings run through field extraction.",
		}, []string{"purpose", "property_type"}),
		DefectsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contaboo_defects_total",
			Help: "Defect findings by kind.",
		}, []string{"kind"}),
		ImportRowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contaboo_import_rows_total",
			Help: "Imported rows by source format and outcome.",
		}, []string{"source", "status"}),
		QualityScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contaboo_quality_score",
			Help:    "Quality score of analyzed listings.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
	}
}

func (r *Registry) ObserveExtraction(purpose, propertyType string) {
	if r == nil {
		return
	}
	r.ExtractionsTotal.WithLabelValues(purpose, propertyType).Inc()
}

func (r *Registry) ObserveDefect(kind string) {
	if r == nil {
		return
	}
	r.DefectsTotal.WithLabelValues(kind).Inc()
}

func (r *Registry) ObserveImportRow(source, status string) {
	if r == nil {
		return
	}
	r.ImportRowsTotal.WithLabelValues(source, status).Inc()
}

func (r *Registry) ObserveQuality(score int) {
	if r == nil {
		return
	}
	r.QualityScore.Observe(float64(score))
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
