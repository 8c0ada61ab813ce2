package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestServeStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- serve(ctx, &http.Server{Handler: http.NotFoundHandler()}, l, time.Second, zerolog.New(&logs))
	}()

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected logs: %s", logs.String())
	}
}

func TestServeLogsShutdownError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	started := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	})}

	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serve(ctx, srv, l, 10*time.Millisecond, zerolog.New(&logs)) }()

	go func() {
		resp, err := http.Get("http://" + l.Addr().String() + "/mcp")
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-started
	cancel()
	err = <-errc
	close(release)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(logs.String(), `"message":"shutdown"`) {
		t.Errorf("shutdown error not logged: %s", logs.String())
	}
}
