// Package signalctx ties context cancellation to OS signals.
package signalctx

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
)

// New returns a context canceled when one of signals arrives or when the
// returned cancel function is called, whichever happens first. After a
// signal, Err reports it as "<signal> signal".
func New(signals ...os.Signal) (context.Context, context.CancelFunc) {
	parent, cancel := context.WithCancel(context.Background())
	ctx := &signalCtx{Context: parent}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	go func() {
		select {
		case sig := <-ch:
			ctx.mu.Lock()
			ctx.err = errors.New(sig.String() + " signal")
			ctx.mu.Unlock()
		case <-parent.Done():
		}
		signal.Stop(ch)
		cancel()
	}()
	return ctx, cancel
}

type signalCtx struct {
	context.Context
	mu  sync.Mutex
	err error
}

func (c *signalCtx) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return c.Context.Err()
}
