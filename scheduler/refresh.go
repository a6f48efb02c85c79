package scheduler

import (
	"context"
	"time"
)

// ChannelRefresh is signalled by the display each time it draws.
type ChannelRefresh struct {
	ch chan struct{}
}

func NewChannelRefresh() *ChannelRefresh {
	return &ChannelRefresh{ch: make(chan struct{}, 1)}
}

// Signal marks a refresh. Signals that arrive while one is pending coalesce.
func (r *ChannelRefresh) Signal() {
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *ChannelRefresh) Wait(ctx context.Context) error {
	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TickerRefresh paces ticks from a timer when there is no display. A zero
// interval runs unpaced.
type TickerRefresh struct {
	ticker *time.Ticker
}

func NewTickerRefresh(interval time.Duration) *TickerRefresh {
	if interval <= 0 {
		return &TickerRefresh{}
	}
	return &TickerRefresh{ticker: time.NewTicker(interval)}
}

func (r *TickerRefresh) Wait(ctx context.Context) error {
	if r.ticker == nil {
		return ctx.Err()
	}
	select {
	case <-r.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *TickerRefresh) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
}
