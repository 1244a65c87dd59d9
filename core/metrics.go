package core

import (
	"context"
	"maps"
)

const (
	MetricDeliveryTotal      = "notify.delivery.total"
	MetricSubscriptionChange = "notify.subscription.change.total"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// cloneTags never returns nil so recorders can add labels freely.
func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	maps.Copy(out, tags)
	return out
}

var _ MetricsRecorder = NopMetricsRecorder{}
