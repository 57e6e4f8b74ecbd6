package push

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is how often the scheduler flushes due notifications.
const DefaultInterval = 30 * time.Second

// Scheduler periodically flushes the dispatcher's queue.
type Scheduler struct {
	mu         sync.RWMutex
	dispatcher *Dispatcher
	interval   time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewScheduler creates a scheduler for d.
func NewScheduler(d *Dispatcher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		dispatcher: d,
		interval:   interval,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.dispatcher.Flush(ctx)
			}
		}
	}()
}

// Stop stops the loop and flushes whatever is already due.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.dispatcher.Flush(context.Background())
}
