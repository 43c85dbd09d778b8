package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// Observer defines the interface for batch event observers
type Observer interface {
	OnEvent(ctx context.Context, event models.BatchEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event models.BatchEvent)
}

// LoggingObserver logs batch events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles batch events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event models.BatchEvent) {
	fields := logrus.Fields{
		"event_type": event.Type,
		"job_id":     event.JobID,
		"resolved":   event.Resolved,
		"total":      event.Total,
	}
	if event.Operation != "" {
		fields["operation"] = event.Operation
	}
	if event.ItemID != "" {
		fields["item_id"] = event.ItemID
		fields["status"] = event.Status
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}

	switch event.Type {
	case models.EventJobStarted:
		o.logger.WithFields(fields).Info("Batch job started")
	case models.EventItemCompleted:
		o.logger.WithFields(fields).Debug("Batch item completed")
	case models.EventItemFailed:
		o.logger.WithFields(fields).Warn("Batch item failed")
	case models.EventJobDone:
		fields["elapsed"] = event.Elapsed.String()
		o.logger.WithFields(fields).Info("Batch job finished")
	default:
		o.logger.WithFields(fields).Info("Batch event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from batch events
type MetricsObserver struct {
	mu             sync.RWMutex
	jobsStarted    int64
	jobsFinished   int64
	itemsCompleted int64
	itemsFailed    int64
	totalJobTime   time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles batch events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event models.BatchEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Type {
	case models.EventJobStarted:
		o.jobsStarted++
	case models.EventItemCompleted:
		o.itemsCompleted++
	case models.EventItemFailed:
		o.itemsFailed++
	case models.EventJobDone:
		o.jobsFinished++
		o.totalJobTime += event.Elapsed
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgJobTime := time.Duration(0)
	if o.jobsFinished > 0 {
		avgJobTime = o.totalJobTime / time.Duration(o.jobsFinished)
	}

	return map[string]interface{}{
		"jobs_started":    o.jobsStarted,
		"jobs_finished":   o.jobsFinished,
		"items_completed": o.itemsCompleted,
		"items_failed":    o.itemsFailed,
		"total_job_time":  o.totalJobTime.String(),
		"avg_job_time":    avgJobTime.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription order.
// Delivery is synchronous so each observer sees events in publish order.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event models.BatchEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event models.BatchEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
