package classify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"logwarden/internal/config"
)

func remoteConfig(endpoint string) config.ClassifierConfig {
	return config.ClassifierConfig{
		Endpoint:       endpoint,
		Timeout:        2 * time.Second,
		WarmupInterval: 10 * time.Millisecond,
	}
}

func TestRemoteClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"class_id":2,"class_name":"System Failure","probabilities":[0.1,0.1,0.6,0.05,0.05,0.05,0.05],"anomaly_score":0.83}`))
	}))
	defer srv.Close()

	r := NewRemote(remoteConfig(srv.URL), nil)
	cls, err := r.Classify(context.Background(), "kernel panic - not syncing")
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if cls.ClassID != 2 || cls.AnomalyScore != 0.83 {
		t.Fatalf("unexpected result: %+v", cls)
	}
	if len(cls.Probabilities) != 7 {
		t.Fatalf("probabilities: %v", cls.Probabilities)
	}
}

func TestRemoteClassifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	r := NewRemote(remoteConfig(srv.URL), nil)
	if _, err := r.Classify(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestRemoteWarmup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(200)
			return
		}
		w.WriteHeader(404)
	}))
	defer srv.Close()

	r := NewRemote(remoteConfig(srv.URL), nil)
	if r.Ready() {
		t.Fatalf("ready before warmup")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartWarmup(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !r.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("classifier never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
