package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Повторная регистрация коллектора с тем же именем возвращает уже существующий:
// несколько компонентов в одном процессе (и тесты) делят DefaultRegisterer.

func orDefault(registerer prometheus.Registerer) prometheus.Registerer {
	if registerer == nil {
		return prometheus.DefaultRegisterer
	}
	return registerer
}

func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := orDefault(registerer).Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register[prometheus.Counter](registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register[prometheus.Gauge](registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register[prometheus.Histogram](registerer, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}
