package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logwarden/internal/model"
)

func TestSendNonBlockingDropsWhenFull(t *testing.T) {
	out := make(chan model.RawLine, 1)
	ctx := context.Background()
	if !SendNonBlocking(ctx, out, NewRawLine("first", "test"), nil) {
		t.Fatalf("first send should fit the buffer")
	}
	if SendNonBlocking(ctx, out, NewRawLine("second", "test"), nil) {
		t.Fatalf("second send should drop, not block")
	}
	got := <-out
	if got.Text != "first" {
		t.Fatalf("buffered line = %q, want first", got.Text)
	}
}

func TestSendNonBlockingSkipsEmptyLines(t *testing.T) {
	out := make(chan model.RawLine, 1)
	if SendNonBlocking(context.Background(), out, NewRawLine("\r\n", "test"), nil) {
		t.Fatalf("empty line should not enter the pipeline")
	}
	if len(out) != 0 {
		t.Fatalf("channel should stay empty")
	}
}

func TestRESTReceiver(t *testing.T) {
	out := make(chan model.RawLine, 10)
	srv := httptest.NewServer(restMux(context.Background(), out, nil))
	defer srv.Close()

	body := "kernel: audit: backlog limit exceeded\n\nsession opened for user cyrus\n"
	resp, err := http.Post(srv.URL+"/lines", "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post lines: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["accepted"] != 2 || result["dropped"] != 0 {
		t.Fatalf("result = %v, want 2 accepted", result)
	}
	first := <-out
	if first.Source != "rest" || first.Text != "kernel: audit: backlog limit exceeded" {
		t.Fatalf("first line = %+v", first)
	}
}

func TestRESTReceiverRejectsGet(t *testing.T) {
	out := make(chan model.RawLine, 1)
	srv := httptest.NewServer(restMux(context.Background(), out, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/lines")
	if err != nil {
		t.Fatalf("get lines: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestTailFileEmitsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	content := "first line\nsecond line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.RawLine, 10)
	go tailFile(ctx, path, false, out, nil)

	for _, want := range []string{"first line", "second line"} {
		select {
		case got := <-out:
			if got.Text != want || got.Source != "file_tail" {
				t.Fatalf("line = %+v, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
