package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aryan-regmi/virgil/internal/audio"
	"github.com/aryan-regmi/virgil/internal/config"
	"github.com/aryan-regmi/virgil/internal/engine"
	"github.com/aryan-regmi/virgil/internal/metrics"
	"github.com/aryan-regmi/virgil/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

type idleSource struct {
	frames chan audio.Frame
	errs   chan error
}

func (s *idleSource) Frames() <-chan audio.Frame { return s.frames }
func (s *idleSource) Errors() <-chan error       { return s.errs }
func (s *idleSource) Format() (int, int)         { return 1, config.TargetSampleRate }
func (s *idleSource) Stop() error                { return nil }

type idleEngine struct{}

func (idleEngine) Transcribe(context.Context, []float32, engine.Strategy) (string, error) {
	return "", nil
}
func (idleEngine) Close() error { return nil }

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()

	cfg := config.Default()
	cfg.WakeWords = []string{"computer"}
	cfg.Engine.ModelPath = "/models/test.bin"

	src := &idleSource{frames: make(chan audio.Frame), errs: make(chan error)}
	m := metrics.NewMetrics(prometheus.NewRegistry())

	sess, err := session.New(nil, cfg, src, idleEngine{}, nil, m)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	return NewHTTPServer(cfg.HTTP, nil, cfg, sess)
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.handleHealth(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
}

func TestHandleHealthRejectsPost(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest("POST", "/health", nil)
	rec := httptest.NewRecorder()
	h.handleHealth(rec, req)

	if rec.Code != 405 {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	h.handleStats(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if _, ok := body["session"]; !ok {
		t.Error("stats body missing session section")
	}
}

func TestHandleConfigOmitsAPIKey(t *testing.T) {
	h := newTestServer(t)
	h.config.Engine.APIKey = "secret"

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	h.handleConfig(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got == "" || strings.Contains(got, "secret") {
		t.Error("config response leaked the API key")
	}
}

func TestHandleRootUnknownPath(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	h.handleRoot(rec, req)

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
