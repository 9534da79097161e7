package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestServerDrainsInFlightComparison signals shutdown while a comparison is waiting on the
// verifier and expects the response to still reach the client.
func TestServerDrainsInFlightComparison(t *testing.T) {
	logger := zap.NewNop()

	verifyStarted := make(chan struct{})
	releaseVerify := make(chan struct{})
	defer func() {
		select {
		case <-releaseVerify:
		default:
			close(releaseVerify)
		}
	}()

	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-verifyStarted:
		default:
			close(verifyStarted)
		}
		<-releaseVerify
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"verified":false,"distance":0.9,"threshold":0.68}`))
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	body, contentType := imagesBody(t)
	client := &http.Client{Timeout: 3 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Post("http://"+addr+"/api/compare-faces", contentType, body)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-verifyStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("comparison did not reach the verifier in time")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)

	// New connections are refused once shutdown has begun.
	if conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond); err == nil {
		conn.Close()
		t.Fatal("expected listener to be closed after shutdown signal")
	}

	close(releaseVerify)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(raw))
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("invalid response body %q: %v", string(raw), err)
		}
		if out["match"] != false || out["distance"] != 0.9 {
			t.Fatalf("unexpected comparison: %v", out)
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
