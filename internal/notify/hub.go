// Package notify fans workspace events out to connected pages.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/certscan/backend/internal/logging"
)

// EventType names a workspace event.
type EventType string

const (
	EventQueueUpdated  EventType = "queue:updated"
	EventRunState      EventType = "run:state"
	EventRunAttempt    EventType = "run:attempt"
	EventRunRetry      EventType = "run:retry"
	EventResultAdded   EventType = "result:added"
	EventResultUpdated EventType = "result:updated"
	EventResultsReset  EventType = "results:cleared"
	EventRunFinished   EventType = "run:finished"
	EventNotice        EventType = "notice"
)

// Level is the severity of a user-facing notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one message sent to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notice is the payload of EventNotice.
type Notice struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Publisher is what producers of events depend on.
type Publisher interface {
	Publish(Event)
}

// Notifier is a Publisher that can also raise user-facing notices.
type Notifier interface {
	Publisher
	Notify(level Level, title, message string)
}

const defaultBuffer = 64

// Hub delivers every published event to every subscriber. A subscriber whose
// buffer is full misses the event; Publish never blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	next   uint64
	buffer int
	logger *slog.Logger
	now    func() time.Time
}

// NewHub creates a hub. A nil logger discards drop warnings.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]chan Event),
		buffer: defaultBuffer,
		logger: logging.Component(logger, "notify"),
		now:    time.Now,
	}
}

// Publish stamps e if needed and sends it to all subscribers.
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("dropping event for slow subscriber", "subscriber", id, "event", e.Type)
		}
	}
}

// Notify publishes a user-facing notice.
func (h *Hub) Notify(level Level, title, message string) {
	h.Publish(Event{Type: EventNotice, Payload: Notice{Level: level, Title: title, Message: message}})
}

// Subscribe registers a new subscriber. The returned function unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
