package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// observer carries the logger and metrics recorder shared by the service and
// the dispatcher.
type observer struct {
	logger          Logger
	metricsRecorder MetricsRecorder
}

// observeOperation emits notify.<operation>.total and .duration_ms and logs the
// outcome. Event kind and delivery status fields become metric tags.
func (o observer) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	elapsed := time.Since(startedAt)
	operation = strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
	if operation == "" {
		operation = "unknown"
	}
	result := "success"
	if err != nil {
		result = "failure"
	}

	logged := cloneFields(fields)
	logged["operation"] = operation
	logged["result"] = result
	logged["duration_ms"] = elapsed.Milliseconds()

	tags := map[string]string{"operation": operation, "status": result}
	for _, key := range []string{"event", "delivery_status"} {
		if value, ok := logged[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}
	o.recordCounter(ctx, "notify."+operation+".total", 1, tags)
	o.recordHistogram(ctx, "notify."+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		logged["error"] = err.Error()
		o.logError(ctx, operation+" failed", logged)
		return
	}
	o.logInfo(ctx, operation+" succeeded", logged)
}

func (o observer) logInfo(ctx context.Context, message string, fields map[string]any) {
	o.emit(ctx, Logger.Info, message, fields)
}

func (o observer) logWarn(ctx context.Context, message string, fields map[string]any) {
	o.emit(ctx, Logger.Warn, message, fields)
}

func (o observer) logError(ctx context.Context, message string, fields map[string]any) {
	o.emit(ctx, Logger.Error, message, fields)
}

func (o observer) emit(ctx context.Context, level func(Logger, string, ...any), message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	level(logger, message, flattenFields(fields)...)
}

func (o observer) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.metricsRecorder != nil {
		o.metricsRecorder.IncCounter(ctx, name, value, cloneTags(tags))
	}
}

func (o observer) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.metricsRecorder != nil {
		o.metricsRecorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
	}
}

func recipientFields(key RecipientKey) map[string]any {
	return map[string]any{"fid": key.FID, "app_fid": key.AppFID}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+4)
	maps.Copy(out, fields)
	return out
}

// flattenFields turns fields into sorted key/value pairs.
func flattenFields(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}
