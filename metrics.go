package solo

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of a Runtime and its Elector.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	elections      *prometheus.CounterVec
	reconciled     prometheus.Counter
	resolutions    *prometheus.CounterVec
	instantiations *prometheus.CounterVec
	packaging      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors that are already registered are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "solo"
	}
	m := &Metrics{
		elections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "elections_total",
				Help:      "Main elections by outcome (promoted, demoted, noop)",
			},
			[]string{"key", "outcome"},
		),
		reconciled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_demotions_total",
				Help:      "Imported candidates demoted because another main already existed",
			},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Singleton resolutions by category and result",
			},
			[]string{"category", "result"},
		),
		instantiations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instantiations_total",
				Help:      "Live singleton instantiations by origin (template, default)",
			},
			[]string{"key", "origin"},
		),
		packaging: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packaging_runs_total",
				Help:      "Packaging hook runs by hook and result",
			},
			[]string{"hook", "result"},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.elections, err = register(reg, m.elections); err != nil {
		return nil, err
	}
	if m.reconciled, err = register(reg, m.reconciled); err != nil {
		return nil, err
	}
	if m.resolutions, err = register(reg, m.resolutions); err != nil {
		return nil, err
	}
	if m.instantiations, err = register(reg, m.instantiations); err != nil {
		return nil, err
	}
	if m.packaging, err = register(reg, m.packaging); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector when an identical
// one was registered before.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) election(key, outcome string) {
	if m == nil {
		return
	}
	m.elections.WithLabelValues(key, outcome).Inc()
}

func (m *Metrics) reconcileDemotion() {
	if m == nil {
		return
	}
	m.reconciled.Inc()
}

func (m *Metrics) resolution(category Category, result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(category.String(), result).Inc()
}

func (m *Metrics) instantiation(key, origin string) {
	if m == nil {
		return
	}
	m.instantiations.WithLabelValues(key, origin).Inc()
}

func (m *Metrics) packagingRun(hook string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.packaging.WithLabelValues(hook, result).Inc()
}
