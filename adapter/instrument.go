package adapter

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fulldump/todostore/record"
)

type Metrics struct {
	Operations *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todostore",
			Subsystem: "adapter",
			Name:      "operations_total",
			Help:      "Adapter operations by namespace, operation and outcome.",
		}, []string{"namespace", "op", "outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "todostore",
			Subsystem: "adapter",
			Name:      "operation_seconds",
			Help:      "Adapter operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace", "op"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.Operations, m.Latency)
	}
	return m
}

// Instrument decorates an adapter with metrics.
func Instrument(a Adapter, namespace string, metrics *Metrics) Adapter {
	return &instrumented{
		Adapter:   a,
		namespace: namespace,
		metrics:   metrics,
	}
}

type instrumented struct {
	Adapter
	namespace string
	metrics   *Metrics
}

func (i *instrumented) observe(op string, started time.Time, err error) {
	outcome := "ok"
	if isNotFound(err) {
		outcome = "not_found"
	} else if err != nil {
		outcome = "error"
	}
	i.metrics.Operations.WithLabelValues(i.namespace, op, outcome).Inc()
	i.metrics.Latency.WithLabelValues(i.namespace, op).Observe(time.Since(started).Seconds())
}

func (i *instrumented) Create(ctx context.Context, r record.Record) (id string, err error) {
	started := time.Now()
	defer func() { i.observe("create", started, err) }()
	id, err = i.Adapter.Create(ctx, r)
	return
}

func (i *instrumented) Update(ctx context.Context, r record.Record) (err error) {
	started := time.Now()
	defer func() { i.observe("update", started, err) }()
	err = i.Adapter.Update(ctx, r)
	return
}

func (i *instrumented) Delete(ctx context.Context, id string) (err error) {
	started := time.Now()
	defer func() { i.observe("delete", started, err) }()
	err = i.Adapter.Delete(ctx, id)
	return
}

func (i *instrumented) Get(ctx context.Context, id string) (r record.Record, err error) {
	started := time.Now()
	defer func() { i.observe("get", started, err) }()
	r, err = Get(ctx, i.Adapter, id)
	return
}

func (i *instrumented) ReadAll(ctx context.Context) (records []record.Record, err error) {
	started := time.Now()
	defer func() { i.observe("read", started, err) }()
	records, err = i.Adapter.ReadAll(ctx)
	return
}

func (i *instrumented) Close() error {
	if c, ok := i.Adapter.(Closer); ok {
		return c.Close()
	}
	return nil
}
