package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/atikulmunna/loglens/internal/model"
)

const subscriberBuffer = 1024

// Hub receives appended records and broadcasts them to all subscribers.
type Hub struct {
	input       <-chan model.LogRecord
	logger      *zap.Logger
	mu          sync.RWMutex
	subscribers map[chan model.LogRecord]struct{}
	dropped     int64
	closed      bool
}

// New creates a Hub that reads from the input channel.
func New(input <-chan model.LogRecord, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		input:       input,
		logger:      logger,
		subscribers: make(map[chan model.LogRecord]struct{}),
	}
}

// Subscribe returns a buffered channel that will receive records.
// Multiple consumers can subscribe; each gets a copy of every record.
// The channel is closed when the hub stops or on Unsubscribe.
func (h *Hub) Subscribe() <-chan model.LogRecord {
	ch := make(chan model.LogRecord, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (h *Hub) Unsubscribe(sub <-chan model.LogRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		if ch == sub {
			delete(h.subscribers, ch)
			close(ch)
			return
		}
	}
}

// Dropped returns the total number of records dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Start begins reading from the input channel and broadcasting.
// Blocks until the context is cancelled or the input channel is closed.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-h.input:
			if !ok {
				return
			}
			h.broadcast(rec)
		}
	}
}

// broadcast sends a record to all subscribers.
// If a subscriber's channel is full, the record is dropped for that subscriber.
func (h *Hub) broadcast(rec model.LogRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			h.dropped++
			h.logger.Debug("hub: dropped record for slow consumer", zap.Int64("total_dropped", h.dropped))
		}
	}
}

// closeAll closes all subscriber channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
	h.closed = true
}
