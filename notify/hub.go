/*
Package notify delivers reconciliation notices to operators.

PURPOSE:
  The reconcilers raise short, non-blocking notices ("Shift closed
  successfully", "Item SKU-9 is not in this shipment"). The Hub is the one
  place they land: every notice is logged, kept in a bounded per-topic
  history for polling clients, and fanned out to live subscribers.

LIFECYCLE:
  hub := notify.NewHub(logger, notify.Options{})
  hub.Start()
  defer hub.Close()

  Notify never blocks the caller. History is written synchronously so a
  poll issued right after an operation sees its notice; logging and
  subscriber fan-out run on the hub goroutine. A full queue drops the
  fan-out for that notice (history is kept) and logs a warning.

SEE ALSO:
  - generic/notify.go: Notifier contract
  - api/handlers_notify.go: GET /api/notifications
*/
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/storeops-engine/generic"
)

// Options tune a Hub. Zero values select defaults.
type Options struct {
	// QueueSize bounds notices waiting for fan-out.
	QueueSize int
	// HistoryPerTopic bounds the notices kept per topic.
	HistoryPerTopic int
	Clock           generic.Clock
}

const (
	defaultQueueSize       = 256
	defaultHistoryPerTopic = 50
)

// Record is a notice as delivered.
type Record struct {
	generic.Notice
	At time.Time
}

// Hub is a generic.Notifier with history and subscriptions.
type Hub struct {
	log   *zap.Logger
	opts  Options
	queue chan Record

	mu      sync.Mutex
	history map[string][]Record
	subs    map[string]map[chan Record]struct{}
	started bool
	closed  bool

	wg sync.WaitGroup
}

func NewHub(logger *zap.Logger, opts Options) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.HistoryPerTopic <= 0 {
		opts.HistoryPerTopic = defaultHistoryPerTopic
	}
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock{}
	}
	return &Hub{
		log:     logger.Named("notify"),
		opts:    opts,
		queue:   make(chan Record, opts.QueueSize),
		history: make(map[string][]Record),
		subs:    make(map[string]map[chan Record]struct{}),
	}
}

// Start launches the delivery goroutine. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.closed {
		return
	}
	h.started = true
	h.wg.Add(1)
	go h.run()
}

// Close stops accepting notices, delivers what is queued, and closes every
// subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.queue)
	started := h.started
	h.mu.Unlock()

	if started {
		h.wg.Wait()
	} else {
		for rec := range h.queue {
			h.deliver(rec)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, topic)
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for rec := range h.queue {
		h.deliver(rec)
	}
}

// Notify implements generic.Notifier.
func (h *Hub) Notify(_ context.Context, n generic.Notice) {
	rec := Record{Notice: n, At: h.opts.Clock.Now()}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		h.log.Debug("notice after close", zap.String("topic", n.Topic))
		return
	}

	hist := append(h.history[n.Topic], rec)
	if over := len(hist) - h.opts.HistoryPerTopic; over > 0 {
		hist = append([]Record(nil), hist[over:]...)
	}
	h.history[n.Topic] = hist

	select {
	case h.queue <- rec:
	default:
		h.log.Warn("notice queue full, fan-out dropped",
			zap.String("topic", n.Topic), zap.String("kind", string(n.Kind)))
	}
}

func (h *Hub) deliver(rec Record) {
	fields := []zap.Field{
		zap.String("topic", rec.Topic),
		zap.String("kind", string(rec.Kind)),
		zap.String("message", rec.Message),
	}
	if rec.Kind == generic.NoticeAlert {
		h.log.Warn("notice", fields...)
	} else {
		h.log.Info("notice", fields...)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[rec.Topic] {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Recent returns the history for topic, oldest first.
func (h *Hub) Recent(topic string) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.history[topic]...)
}

// Forget drops a topic's history, typically when its session ends.
func (h *Hub) Forget(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, topic)
}

// Subscribe receives notices for topic until cancel is called or the hub
// closes. Slow subscribers miss notices rather than stall delivery.
func (h *Hub) Subscribe(topic string, buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Record, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan Record]struct{})
	}
	h.subs[topic][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[topic]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
			}
		})
	}
}
