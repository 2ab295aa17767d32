package notify

import (
	"log/slog"
	"sync"
)

// queueSize bounds each subscriber's pending notifications. A subscriber that
// stops draining loses newer messages rather than stalling the pipeline.
const queueSize = 16

// Notifier fans transcript notifications out to registered subscribers. Each
// subscriber gets a dedicated bounded queue drained by its own goroutine, so
// a slow callback never blocks Post.
type Notifier struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber

	posted  uint64
	dropped uint64
}

type subscriber struct {
	queue chan string
	done  chan struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		logger: logger,
		subs:   make(map[uint64]*subscriber),
	}
}

// Register adds a subscriber and returns its id for Unregister. The callback
// runs on a dedicated goroutine, one message at a time, in post order.
func (n *Notifier) Register(fn func(transcript string)) uint64 {
	sub := &subscriber{
		queue: make(chan string, queueSize),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		for transcript := range sub.queue {
			fn(transcript)
		}
	}()

	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs[id] = sub

	return id
}

// Unregister removes a subscriber and waits for its in-flight callback to
// return. Unknown ids are ignored.
func (n *Notifier) Unregister(id uint64) {
	n.mu.Lock()
	sub, ok := n.subs[id]
	if ok {
		delete(n.subs, id)
	}
	n.mu.Unlock()

	if !ok {
		return
	}

	close(sub.queue)
	<-sub.done
}

// Post delivers a transcript to every subscriber without blocking. Full
// queues drop the message for that subscriber and log a warning.
func (n *Notifier) Post(transcript string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.posted++

	for id, sub := range n.subs {
		select {
		case sub.queue <- transcript:
		default:
			n.dropped++
			n.logger.Warn("notification dropped, subscriber queue full",
				"subscriber_id", id)
		}
	}
}

// Subscribers returns the current subscriber count.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Stats returns post and drop counters.
func (n *Notifier) Stats() (posted, dropped uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.posted, n.dropped
}

// Close unregisters every subscriber and waits for their callbacks.
func (n *Notifier) Close() {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[uint64]*subscriber)
	n.mu.Unlock()

	for _, sub := range subs {
		close(sub.queue)
		<-sub.done
	}
}
