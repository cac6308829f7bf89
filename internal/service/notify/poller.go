// internal/service/notify/poller.go

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval matches the map client's notification timer
const DefaultInterval = 5 * time.Second

// Target is polled on every tick
type Target interface {
	Poll(ctx context.Context) error
}

// PollerConfig contains configuration for the poller
type PollerConfig struct {
	Interval    time.Duration
	TickTimeout time.Duration
}

// Poller drives a Target from a ticker until stopped
type Poller struct {
	target Target
	config PollerConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPoller creates a poller; Start must be called to begin ticking
func NewPoller(target Target, config PollerConfig, logger *slog.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		target: target,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the polling loop. Calling it more than once has no effect.
func (p *Poller) Start() {
	p.once.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

// Stop cancels the loop and waits for the current tick to finish
func (p *Poller) Stop(ctx context.Context) error {
	p.cancel()

	c := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(c)
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.TickTimeout)
	defer cancel()

	if err := p.target.Poll(ctx); err != nil && p.ctx.Err() == nil {
		p.logger.Warn("Poll failed", "error", err)
	}
}
