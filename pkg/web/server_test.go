package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-recorder/pkg/audioio"
	"github.com/teslashibe/go-recorder/pkg/capture"
	"github.com/teslashibe/go-recorder/pkg/export"
)

type testRig struct {
	srv *Server
	src *audioio.MockSource
	rec *capture.Controller
	dir string
}

func newRig(t *testing.T, opts ...audioio.MockSourceOption) *testRig {
	t.Helper()
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	src := audioio.NewMockSource(cfg, nil, opts...)
	rec := capture.NewController(src, nil)
	dir := t.TempDir()
	srv := NewServer("127.0.0.1:0", rec, export.New(nil, nil), nil, WithExportDir(dir))
	return &testRig{srv: srv, src: src, rec: rec, dir: dir}
}

func (r *testRig) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	return r.send(t, req)
}

func (r *testRig) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := r.srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decodeState(t *testing.T, data []byte) string {
	t.Helper()
	var m struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", data, err)
	}
	return m.State
}

func TestServer_Lifecycle(t *testing.T) {
	r := newRig(t)

	steps := []struct {
		path  string
		code  int
		state string
	}{
		{"/api/start", http.StatusOK, "recording"},
		{"/api/start", http.StatusConflict, ""},
		{"/api/pause", http.StatusOK, "paused"},
		{"/api/resume", http.StatusOK, "recording"},
		{"/api/stop", http.StatusOK, "stopped"},
		{"/api/stop", http.StatusOK, "stopped"},
	}
	for _, st := range steps {
		code, body := r.do(t, http.MethodPost, st.path, "")
		if code != st.code {
			t.Fatalf("POST %s = %d (%s), want %d", st.path, code, body, st.code)
		}
		if st.state != "" {
			if got := decodeState(t, body); got != st.state {
				t.Errorf("POST %s state = %q, want %q", st.path, got, st.state)
			}
		}
	}
}

func TestServer_StartDeviceUnavailable(t *testing.T) {
	r := newRig(t, audioio.WithOpenError(errors.New("busy")))

	code, body := r.do(t, http.MethodPost, "/api/start", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("POST /api/start = %d (%s), want 503", code, body)
	}
}

func TestServer_Status(t *testing.T) {
	r := newRig(t)

	code, body := r.do(t, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("GET /api/status = %d", code)
	}
	var resp struct {
		Metrics json.RawMessage `json:"metrics"`
		Process ProcessStats    `json:"process"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if got := decodeState(t, resp.Metrics); got != "idle" {
		t.Errorf("state = %q, want idle", got)
	}
	if resp.Process.Goroutines == 0 {
		t.Error("goroutine count missing from status")
	}
}

func TestServer_Export(t *testing.T) {
	r := newRig(t)

	if code, body := r.do(t, http.MethodPost, "/api/export", `{"format":"wav","path":"empty.wav"}`); code != http.StatusUnprocessableEntity {
		t.Errorf("export of empty recording = %d (%s), want 422", code, body)
	}
	if _, err := os.Stat(filepath.Join(r.dir, "empty.wav")); !os.IsNotExist(err) {
		t.Error("empty export left a file behind")
	}

	r.do(t, http.MethodPost, "/api/start", "")
	r.src.Deliver(make([]float32, 1024))
	r.src.Deliver(make([]float32, 1024))
	r.do(t, http.MethodPost, "/api/stop", "")

	code, body := r.do(t, http.MethodPost, "/api/export", `{"format":"wav","path":"take.wav"}`)
	if code != http.StatusOK {
		t.Fatalf("export = %d (%s)", code, body)
	}
	var res export.Result
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Frames != 2048 || res.Format != export.FormatWAV {
		t.Errorf("unexpected result: %+v", res)
	}
	info, err := os.Stat(filepath.Join(r.dir, "take.wav"))
	if err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	if info.Size() != 44+2*2048 {
		t.Errorf("file size = %d, want %d", info.Size(), 44+2*2048)
	}
}

func TestServer_ExportErrors(t *testing.T) {
	r := newRig(t)
	r.do(t, http.MethodPost, "/api/start", "")
	r.src.Deliver(make([]float32, 1024))
	r.do(t, http.MethodPost, "/api/stop", "")

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{"format":`, http.StatusBadRequest},
		{"bad format", `{"format":"flac"}`, http.StatusBadRequest},
		{"no lossy encoder", `{"format":"lossy","path":"x.mp3"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := r.do(t, http.MethodPost, "/api/export", tt.body)
			if code != tt.code {
				t.Errorf("export = %d (%s), want %d", code, body, tt.code)
			}
		})
	}
}

func (r *testRig) recordOneBlock(t *testing.T) {
	t.Helper()
	r.do(t, http.MethodPost, "/api/start", "")
	r.src.Deliver(make([]float32, 1024))
	r.do(t, http.MethodPost, "/api/stop", "")
}

func TestServer_ExportPathConfined(t *testing.T) {
	r := newRig(t)
	r.recordOneBlock(t)

	outside := filepath.Join(t.TempDir(), "victim.txt")
	if err := os.WriteFile(outside, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}
	rel, err := filepath.Rel(r.dir, outside)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"absolute", outside},
		{"parent traversal", rel},
		{"dot dot", "../escape.wav"},
		{"nested traversal", "takes/../../escape.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(ExportRequest{Format: "wav", Path: tt.path})
			code, resp := r.do(t, http.MethodPost, "/api/export", string(body))
			if code != http.StatusBadRequest {
				t.Errorf("export to %q = %d (%s), want 400", tt.path, code, resp)
			}
		})
	}

	data, _ := os.ReadFile(outside)
	if string(data) != "keep me" {
		t.Errorf("file outside export dir overwritten: %q", data)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(r.dir), "escape.wav")); !os.IsNotExist(err) {
		t.Error("export escaped the export directory")
	}
}

func TestServer_ExportNestedLocalPath(t *testing.T) {
	r := newRig(t)
	r.recordOneBlock(t)
	if err := os.Mkdir(filepath.Join(r.dir, "takes"), 0o755); err != nil {
		t.Fatal(err)
	}

	code, body := r.do(t, http.MethodPost, "/api/export", `{"format":"wav","path":"takes/one.wav"}`)
	if code != http.StatusOK {
		t.Fatalf("export = %d (%s)", code, body)
	}
	if _, err := os.Stat(filepath.Join(r.dir, "takes", "one.wav")); err != nil {
		t.Errorf("nested export missing: %v", err)
	}
}

func TestServer_RejectsFormPosts(t *testing.T) {
	r := newRig(t)
	r.recordOneBlock(t)

	req := httptest.NewRequest(http.MethodPost, "/api/export", strings.NewReader("format=wav&path=form.wav"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://evil.example")
	if code, _ := r.send(t, req); code != http.StatusUnsupportedMediaType {
		t.Errorf("form-encoded export = %d, want 415", code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/start", nil)
	if code, _ := r.send(t, req); code != http.StatusUnsupportedMediaType {
		t.Errorf("start without JSON content type = %d, want 415", code)
	}

	if _, err := os.Stat(filepath.Join(r.dir, "form.wav")); !os.IsNotExist(err) {
		t.Error("form-encoded export wrote a file")
	}
}

func TestServer_CORS(t *testing.T) {
	preflight := func(srv *Server, origin string) string {
		req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := srv.App().Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.Header.Get("Access-Control-Allow-Origin")
	}

	r := newRig(t)
	if got := preflight(r.srv, "https://evil.example"); got != "" {
		t.Errorf("default server allows origin %q", got)
	}

	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	rec := capture.NewController(audioio.NewMockSource(cfg, nil), nil)
	srv := NewServer("127.0.0.1:0", rec, export.New(nil, nil), nil, WithAllowedOrigins("http://localhost:3000"))

	if got := preflight(srv, "http://localhost:3000"); got != "http://localhost:3000" {
		t.Errorf("allowed origin got ACAO %q", got)
	}
	if got := preflight(srv, "https://evil.example"); got == "*" || got == "https://evil.example" {
		t.Errorf("unlisted origin got ACAO %q", got)
	}
}

func TestServer_MeterRequiresUpgrade(t *testing.T) {
	r := newRig(t)

	if code, _ := r.do(t, http.MethodGet, "/ws/meter", ""); code != http.StatusUpgradeRequired {
		t.Errorf("GET /ws/meter without upgrade = %d, want 426", code)
	}
}

func TestServer_MeterWebSocket(t *testing.T) {
	r := newRig(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/meter", nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for r.srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("meter client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.srv.PublishMetrics(r.rec.Metrics())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	var ev struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "metrics" {
		t.Errorf("event type = %q, want metrics", ev.Type)
	}
	if got := decodeState(t, ev.Data); got != "idle" {
		t.Errorf("metrics state = %q, want idle", got)
	}
}

func TestServer_MeterClientsComeAndGo(t *testing.T) {
	r := newRig(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	// Keep metrics flowing so write pumps are busy while clients leave.
	stopPub := make(chan struct{})
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		for {
			select {
			case <-stopPub:
				return
			default:
				r.srv.PublishMetrics(r.rec.Metrics())
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer func() {
		close(stopPub)
		<-pubDone
	}()

	url := "ws://" + ln.Addr().String() + "/ws/meter"
	for i := 0; i < 10; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("Dial() #%d error: %v", i, err)
		}
		waitClients(t, r.srv, 1)
		conn.Close()
		waitClients(t, r.srv, 0)
	}
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("meter clients = %d, want %d", srv.Hub().ClientCount(), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{capture.ErrAlreadyRecording, http.StatusConflict},
		{capture.ErrDeviceUnavailable, http.StatusServiceUnavailable},
		{export.ErrEmptyBuffer, http.StatusUnprocessableEntity},
		{export.ErrEncodeFailure, http.StatusInternalServerError},
		{export.ErrUnknownEncoder, http.StatusBadRequest},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
