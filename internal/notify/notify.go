// Package notify delivers user-facing messages such as batch summaries.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Severity classifies a notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier is the fire-and-forget notification channel
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string)
}

// Notification is one delivered message
type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// LogNotifier writes notifications to a logrus entry
type LogNotifier struct {
	entry *logrus.Entry
}

// NewLogNotifier creates a notifier backed by the given logger
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{entry: logger.WithField("component", "notify")}
}

// Notify logs the message at a level matching its severity
func (n *LogNotifier) Notify(ctx context.Context, severity Severity, message string) {
	entry := n.entry.WithField("severity", severity)
	switch severity {
	case SeverityError:
		entry.Error(message)
	case SeverityWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

// DefaultInboxCapacity bounds the in-memory inbox
const DefaultInboxCapacity = 100

// Inbox keeps the most recent notifications in memory, newest last
type Inbox struct {
	mu       sync.RWMutex
	capacity int
	entries  []Notification
}

// NewInbox creates an inbox holding at most capacity notifications
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{capacity: capacity}
}

// Notify stores the message, evicting the oldest entry when full
func (i *Inbox) Notify(ctx context.Context, severity Severity, message string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, Notification{
		ID:        uuid.NewString(),
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if over := len(i.entries) - i.capacity; over > 0 {
		i.entries = append([]Notification(nil), i.entries[over:]...)
	}
}

// List returns a copy of the stored notifications
func (i *Inbox) List() []Notification {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Notification{}, i.entries...)
}

// Multi sends every notification to all wrapped notifiers
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, severity Severity, message string) {
	for _, n := range m {
		n.Notify(ctx, severity, message)
	}
}
