package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHTTPServer_ShutdownDrainsInFlightRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ctxErr := make(chan error, 1)

	srv := newHTTPServer("0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		ctxErr <- r.Context().Err()
		w.WriteHeader(http.StatusCreated)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(ln) }()

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/api/bookings", "application/json", nil)
		if err != nil {
			t.Errorf("request: %v", err)
			respCh <- nil
			return
		}
		respCh <- resp
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never entered")
	}

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctx)
	}()

	// shutdown has started; the request must keep a live context
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-ctxErr; err != nil {
		t.Errorf("request context cancelled during shutdown: %v", err)
	}
	if resp := <-respCh; resp != nil {
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("status = %d, want 201", resp.StatusCode)
		}
	}
	if err := <-shutdownErr; err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestHTTPServer_Timeouts(t *testing.T) {
	srv := newHTTPServer("8080", http.NotFoundHandler())

	if srv.Addr != ":8080" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.BaseContext != nil {
		t.Error("BaseContext must stay unset")
	}
	if srv.ReadHeaderTimeout == 0 || srv.WriteTimeout == 0 {
		t.Error("timeouts not set")
	}
}

func TestRedisPinger(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	p := redisPinger(rdb)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mr.Close()
	if err := p.Ping(context.Background()); err == nil {
		t.Errorf("expected connection error after redis stopped, got %v", err)
	}
}
