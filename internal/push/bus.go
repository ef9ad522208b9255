package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
)

// busBufferSize is the capacity of the delivery queue. Notifications are
// dropped when it is full so ingestion never blocks on slow notifiers.
const busBufferSize = 256

// Bus delivers notifications to notifiers asynchronously. Publish never
// blocks; one worker goroutine hands each notification to every notifier
// in turn.
type Bus struct {
	notifiers []Notifier
	mu        sync.RWMutex
	queue     chan *Notification
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	timeout   time.Duration
	metrics   *metrics.PushMetrics
	log       logger.Logger
}

// NewBus creates a bus and starts its worker. timeout bounds each notifier
// call; zero means no bound.
func NewBus(timeout time.Duration, m *metrics.PushMetrics, log logger.Logger) *Bus {
	b := &Bus{
		queue:   make(chan *Notification, busBufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		timeout: timeout,
		metrics: m,
		log:     log.Module("push.bus"),
	}
	go b.processLoop()
	return b
}

// Subscribe adds a notifier.
func (b *Bus) Subscribe(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifiers = append(b.notifiers, n)
}

// Publish queues n for delivery. Returns false when the bus is stopped or
// its queue is full.
func (b *Bus) Publish(n *Notification) bool {
	select {
	case <-b.stopCh:
		return false
	default:
	}

	select {
	case b.queue <- n:
		return true
	default:
		b.metrics.RecordDropped()
		b.log.Warn("delivery queue full, dropping notification", logger.String("notification_id", n.ID))
		return false
	}
}

// Stop delivers what is already queued, then stops the worker. Safe to
// call more than once.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

func (b *Bus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case n := <-b.queue:
			b.dispatch(n)
		case <-b.stopCh:
			for {
				select {
				case n := <-b.queue:
					b.dispatch(n)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(n *Notification) {
	b.mu.RLock()
	notifiers := make([]Notifier, len(b.notifiers))
	copy(notifiers, b.notifiers)
	b.mu.RUnlock()

	for _, notifier := range notifiers {
		err := b.safeNotify(notifier, n)
		b.metrics.RecordDelivery(notifier.Name(), err)
		if err != nil {
			b.log.Warn("notification delivery failed",
				logger.String("notifier", notifier.Name()),
				logger.String("notification_id", n.ID),
				logger.Error(err))
		}
	}
}

// safeNotify keeps a panicking notifier from killing the worker.
func (b *Bus) safeNotify(notifier Notifier, n *Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return notifier.Notify(ctx, n)
}
