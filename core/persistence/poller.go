package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// changePoller runs one goroutine per polled collection that refreshes it
// on a fixed interval.
type changePoller struct {
	mu       sync.Mutex
	active   map[string]context.CancelFunc
	wg       sync.WaitGroup
	interval time.Duration
	refresh  func(ctx context.Context, name string) error
	logger   *zap.Logger
}

func newChangePoller(interval time.Duration, refresh func(ctx context.Context, name string) error, logger *zap.Logger) *changePoller {
	return &changePoller{
		active:   make(map[string]context.CancelFunc),
		interval: interval,
		refresh:  refresh,
		logger:   logger,
	}
}

// start begins polling name. It is a no-op when a poller already runs for
// it.
func (p *changePoller) start(parent context.Context, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[name]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	p.active[name] = cancel
	p.wg.Add(1)
	go p.run(ctx, name)

	p.logger.Debug("Poller started", zap.String("collection", name), zap.Duration("interval", p.interval))
	return true
}

// stop cancels the poller for name. The goroutine exits before its next
// read.
func (p *changePoller) stop(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.active[name]
	if !ok {
		return false
	}
	cancel()
	delete(p.active, name)

	p.logger.Debug("Poller stopped", zap.String("collection", name))
	return true
}

func (p *changePoller) running(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[name]
	return ok
}

// stopAll cancels every poller and waits for their goroutines to exit.
func (p *changePoller) stopAll() {
	p.mu.Lock()
	for name, cancel := range p.active {
		cancel()
		delete(p.active, name)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *changePoller) run(ctx context.Context, name string) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if err := p.refresh(ctx, name); err != nil && ctx.Err() == nil {
				p.logger.Warn("Poll failed", zap.String("collection", name), zap.Error(err))
			}
		}
	}
}
