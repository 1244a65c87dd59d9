package core

import (
	"context"
	"sync"
)

const testAppURL = "https://tickbase.example"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AppURL = testAppURL
	return cfg
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[RecipientKey]NotificationDetails
	putErr  error
	delErr  error
	puts    int
	deletes int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[RecipientKey]NotificationDetails{}}
}

func (s *memoryStore) Get(_ context.Context, key RecipientKey) (NotificationDetails, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	details, ok := s.entries[key]
	return details, ok, nil
}

func (s *memoryStore) Put(_ context.Context, key RecipientKey, details NotificationDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.entries[key] = details
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key RecipientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	s.deletes++
	delete(s.entries, key)
	return nil
}

type listingStore struct {
	*memoryStore
}

func (s listingStore) ListByApp(_ context.Context, appFID int64) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Credential{}
	for key, details := range s.entries {
		if key.AppFID == appFID {
			out = append(out, Credential{Key: key, Details: details})
		}
	}
	return out, nil
}

type sentNotification struct {
	key          RecipientKey
	notification Notification
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []sentNotification
	outcome DeliveryOutcome
}

func (s *recordingSender) Send(_ context.Context, key RecipientKey, notification Notification) DeliveryOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentNotification{key: key, notification: notification})
	if s.outcome.Status == "" {
		return DeliveryOutcome{Status: DeliveryStatusSuccess, NotificationID: "n-1"}
	}
	return s.outcome
}

func (s *recordingSender) calls() []sentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentNotification, len(s.sent))
	copy(out, s.sent)
	return out
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []SubscriptionChange
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, change SubscriptionChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu       sync.Mutex
	counters []capturedCounter
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *captureMetricsRecorder) hasCounter(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, counter := range m.counters {
		if counter.name == name && (status == "" || counter.tags["status"] == status) {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu      *sync.Mutex
	records *[]capturedLog
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := map[string]any{}
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) find(level string, msg string) (capturedLog, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range *l.records {
		if record.level == level && record.msg == msg {
			return record, true
		}
	}
	return capturedLog{}, false
}
