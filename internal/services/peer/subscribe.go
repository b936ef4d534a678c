package peer

import (
	"context"
	"time"

	"gossips/internal/domain"
	"gossips/internal/logger"
)

// watch forwards every event on path to handle, resubscribing after a
// channel error until ctx ends.
func (p *Peer) watch(ctx context.Context, path string, handle func(context.Context, domain.Event)) {
	go func() {
		for {
			events, err := p.ch.Watch(ctx, path)
			if err != nil {
				logger.Warn("Subscribe failed", "path", path, "error", err.Error())
			} else {
				for ev := range events {
					if ev.Err != nil {
						logger.Warn("Subscription lost", "path", path, "error", ev.Err.Error())
						continue
					}
					p.post(func() { handle(p.ctx, ev) })
				}
			}
			if !p.pause(ctx) {
				return
			}
			logger.Debug("Resubscribing", "path", path)
		}
	}()
}

// watchChildren is watch for child additions.
func (p *Peer) watchChildren(ctx context.Context, path string, handle func(context.Context, domain.Child)) {
	go func() {
		for {
			children, err := p.ch.WatchChildren(ctx, path)
			if err != nil {
				logger.Warn("Subscribe failed", "path", path, "error", err.Error())
			} else {
				for c := range children {
					if c.Err != nil {
						logger.Warn("Subscription lost", "path", path, "error", c.Err.Error())
						continue
					}
					p.post(func() {
						if ctx.Err() == nil {
							handle(p.ctx, c)
						}
					})
				}
			}
			if !p.pause(ctx) {
				return
			}
			logger.Debug("Resubscribing", "path", path)
		}
	}()
}

func (p *Peer) pause(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	t := time.NewTimer(p.resubscribe)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
