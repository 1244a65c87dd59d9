// Package prometheus exports notify metrics through client_golang vectors.
package prometheus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-notify/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder implements core.MetricsRecorder. Vectors are registered on first
// use; the label names seen on that first call are fixed for the metric.
// Later calls drop unknown tags and fill missing ones with "".
type Recorder struct {
	registerer prom.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
	labels     map[string][]string
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = SanitizeName(namespace)
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewRecorder(registerer prom.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		buckets:    prom.DefBuckets,
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
		labels:     map[string][]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec, labels := r.counter(name, tags)
	if vec == nil {
		return
	}
	vec.With(labelValues(labels, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec, labels := r.histogram(name, tags)
	if vec == nil {
		return
	}
	vec.With(labelValues(labels, tags)).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*prom.CounterVec, []string) {
	full := r.fullName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[full]; ok {
		return vec, r.labels[full]
	}
	labels := labelNames(tags)
	vec := prom.NewCounterVec(prom.CounterOpts{Name: full, Help: "notify counter " + name}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, nil
		}
		existing, ok := already.ExistingCollector.(*prom.CounterVec)
		if !ok {
			return nil, nil
		}
		vec = existing
	}
	r.counters[full] = vec
	r.labels[full] = labels
	return vec, labels
}

func (r *Recorder) histogram(name string, tags map[string]string) (*prom.HistogramVec, []string) {
	full := r.fullName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[full]; ok {
		return vec, r.labels[full]
	}
	labels := labelNames(tags)
	vec := prom.NewHistogramVec(prom.HistogramOpts{Name: full, Help: "notify histogram " + name, Buckets: r.buckets}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, nil
		}
		existing, ok := already.ExistingCollector.(*prom.HistogramVec)
		if !ok {
			return nil, nil
		}
		vec = existing
	}
	r.histograms[full] = vec
	r.labels[full] = labels
	return vec, labels
}

func (r *Recorder) fullName(name string) string {
	name = SanitizeName(name)
	if r.namespace == "" || strings.HasPrefix(name, r.namespace+"_") {
		return name
	}
	return r.namespace + "_" + name
}

// SanitizeName maps a dotted metric name to a valid Prometheus name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if sanitized := SanitizeName(key); sanitized != "" {
			names = append(names, sanitized)
		}
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags map[string]string) prom.Labels {
	sanitized := make(map[string]string, len(tags))
	for key, value := range tags {
		sanitized[SanitizeName(key)] = value
	}
	labels := make(prom.Labels, len(names))
	for _, name := range names {
		labels[name] = sanitized[name]
	}
	return labels
}

var _ core.MetricsRecorder = (*Recorder)(nil)
