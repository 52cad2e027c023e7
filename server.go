package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// lifecycle runs an HTTP server until it fails or is told to stop, then
// drains in-flight classifications.
type lifecycle struct {
	server *http.Server
	logger *zap.Logger
	drain  time.Duration

	// listener replaces ListenAndServe when set.
	listener net.Listener
	// signals replaces SIGINT/SIGTERM delivery when set. Closing it waits for
	// the server to exit on its own.
	signals <-chan os.Signal
}

func (l *lifecycle) run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- l.serve() }()

	stop, release := l.stopSignal(ctx)
	defer release()

	select {
	case err := <-serveErr:
		return err
	case reason, ok := <-stop:
		if !ok {
			return <-serveErr
		}
		return l.shutdown(reason, serveErr)
	}
}

func (l *lifecycle) serve() error {
	var err error
	if l.listener != nil {
		err = l.server.Serve(l.listener)
	} else {
		err = l.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// stopSignal merges ctx cancellation with OS signals into one channel of
// shutdown reasons.
func (l *lifecycle) stopSignal(ctx context.Context) (<-chan string, func()) {
	signals := l.signals
	release := func() {}
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		signals = ch
		release = func() { signal.Stop(ch) }
	}

	stop := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		select {
		case sig, ok := <-signals:
			if !ok {
				close(stop)
				return
			}
			stop <- sig.String()
		case <-ctx.Done():
			stop <- "context done"
		case <-done:
		}
	}()
	return stop, func() {
		close(done)
		release()
	}
}

func (l *lifecycle) shutdown(reason string, serveErr <-chan error) error {
	l.logger.Info("shutting down", zap.String("reason", reason), zap.Duration("drain_timeout", l.drain))
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), l.drain)
	defer cancel()
	if err := l.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Error("shutdown did not drain in time", zap.Error(err))
		return err
	}
	err := <-serveErr
	l.logger.Info("server stopped", zap.Duration("drained_in", time.Since(started)))
	return err
}
