package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLifecycleStopsWhenContextIsCancelled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc := &lifecycle{
		server:   &http.Server{Handler: http.NotFoundHandler()},
		logger:   zap.New(core),
		drain:    time.Second,
		listener: listener,
		signals:  make(chan os.Signal),
	}
	done := make(chan error, 1)
	go func() { done <- lc.run(ctx) }()

	waitForServer(t, listener.Addr().String())
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}

	stopping := logs.FilterMessage("shutting down").All()
	if len(stopping) != 1 || stopping[0].ContextMap()["reason"] != "context done" {
		t.Fatalf("expected one shutdown entry with the reason, got %+v", stopping)
	}
	if logs.FilterMessage("server stopped").Len() != 1 {
		t.Fatal("expected a stopped entry")
	}
}

func TestLifecycleReturnsServeError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	listener.Close()

	lc := &lifecycle{
		server:   &http.Server{Handler: http.NotFoundHandler()},
		logger:   zap.NewNop(),
		drain:    time.Second,
		listener: listener,
		signals:  make(chan os.Signal),
	}

	done := make(chan error, 1)
	go func() { done <- lc.run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error from a closed listener")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
}
