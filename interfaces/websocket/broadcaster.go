package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"flopods-backend/domain/events"
	"flopods-backend/pkg/observability"
)

// DefaultDebounceWindow is how long a (message, description) pair is
// considered a duplicate for the same user.
const DefaultDebounceWindow = 500 * time.Millisecond

// Broadcaster delivers domain events to every live session of a user.
// Delivery is at-least-once, best-effort: there is no outbox and no replay
// on reconnect. Rapid duplicates of the same event are suppressed within a
// short window, so a burst of identical mutations becomes one frame.
type Broadcaster struct {
	hub     *Hub
	window  time.Duration
	logger  *zap.Logger
	metrics *observability.Collector
	now     func() time.Time

	mu     sync.Mutex
	recent map[dedupeKey]time.Time
}

// dedupeKey identifies a duplicate: same user, same message, same
// description. Events with an empty message bypass deduplication.
type dedupeKey struct {
	userID      string
	message     string
	description string
}

// NewBroadcaster creates a broadcaster over hub. A non-positive window
// falls back to DefaultDebounceWindow.
func NewBroadcaster(hub *Hub, window time.Duration, metrics *observability.Collector, logger *zap.Logger) *Broadcaster {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Broadcaster{
		hub:     hub,
		window:  window,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		recent:  make(map[dedupeKey]time.Time),
	}
}

// Publish pushes event to every session of userID, unless an identical
// event was already pushed to that user inside the debounce window.
func (b *Broadcaster) Publish(userID string, event events.Event) {
	if b.isDuplicate(userID, event) {
		b.metrics.MessagesDebounced.Inc()
		b.logger.Debug("duplicate event suppressed",
			zap.String("user_id", userID),
			zap.String("kind", event.Kind),
			zap.String("message", event.Message))
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal event",
			zap.String("kind", event.Kind),
			zap.Error(err))
		return
	}

	b.hub.Send(userID, data)
}

func (b *Broadcaster) isDuplicate(userID string, event events.Event) bool {
	if event.Message == "" {
		return false
	}

	key := dedupeKey{userID: userID, message: event.Message, description: event.Description}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if sent, ok := b.recent[key]; ok && now.Sub(sent) < b.window {
		return true
	}
	b.recent[key] = now

	// Drop expired entries so the map tracks only the live window.
	if len(b.recent) > 1024 {
		for k, t := range b.recent {
			if now.Sub(t) >= b.window {
				delete(b.recent, k)
			}
		}
	}
	return false
}
