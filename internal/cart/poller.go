package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cartsync/internal/model"
)

// DefaultPollInterval is the wait between reconciliation ticks.
const DefaultPollInterval = 10 * time.Second

// Poller triggers Sync periodically while started.
//
// State machine: dormant → waiting → reconciling → waiting → … A new timer is
// armed only after a tick finishes, so ticks never overlap. Stop returns the
// poller to dormant; it can be started again.
type Poller struct {
	rec      *Reconciler
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewPoller creates a dormant poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(rec *Reconciler, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{rec: rec, interval: interval, logger: logger}
}

// Start begins polling. The first tick fires after one interval.
// Starting a running poller does nothing. The poller also goes dormant when
// ctx ends and can then be started again.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(ctx, p.stop, p.done)
}

// Stop halts polling and waits for an in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Poller) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.stop == stop {
				p.stop, p.done = nil, nil
			}
			p.mu.Unlock()
			return
		case <-stop:
			return
		case <-timer.C:
			timer.Reset(p.tick(ctx))
		}
	}
}

// tick runs one reconciliation and returns the wait before the next one.
// Unauthenticated ticks are no-ops. A failed fetch skips the tick; when the
// server asked us to back off for longer than the interval, we honour it.
func (p *Poller) tick(ctx context.Context) time.Duration {
	if !p.rec.Authenticated() {
		return p.interval
	}

	ctx, cancel := context.WithTimeout(ctx, p.rec.requestTimeout)
	defer cancel()

	if _, err := p.rec.Sync(ctx); err != nil {
		p.logger.Debug("cart poll skipped", "error", err)
		if wait := model.RetryAfter(err); wait > p.interval {
			return wait
		}
	}
	return p.interval
}
