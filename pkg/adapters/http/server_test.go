package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePreview struct {
	mu     sync.Mutex
	doc    string
	state  render.State
	subs   []chan string
	runs   int
	runErr error
}

func (p *fakePreview) Document() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

func (p *fakePreview) Snapshot() render.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePreview) Subscribe() (<-chan string, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan string, 10)
	p.subs = append(p.subs, ch)
	return ch, func() {}
}

func (p *fakePreview) RunNow() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs++
	return p.runErr
}

func (p *fakePreview) publish(doc string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
	for _, ch := range p.subs {
		ch <- doc
	}
}

func (p *fakePreview) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

type fakeSessions map[domain.DocumentID]*fakePreview

func (s fakeSessions) Get(doc domain.DocumentID) (ports.Preview, bool) {
	p, ok := s[doc]
	if !ok {
		return nil, false
	}
	return p, true
}

func (s fakeSessions) List() []domain.DocumentID {
	var docs []domain.DocumentID
	for _, d := range []domain.DocumentID{"/work/a.py", "/work/b.py"} {
		if _, ok := s[d]; ok {
			docs = append(docs, d)
		}
	}
	return docs
}

func newSessions() (fakeSessions, *fakePreview, *fakePreview) {
	a := &fakePreview{doc: `<div id="arepl">a</div>`}
	b := &fakePreview{doc: `<div id="arepl">b</div>`}
	return fakeSessions{"/work/a.py": a, "/work/b.py": b}, a, b
}

func TestGetPage_DefaultsToFirstDocument(t *testing.T) {
	sessions, _, _ := newSessions()
	handler := NewHandler(sessions)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<div id="arepl">a</div>`)
	assert.Contains(t, body, `const doc = "/work/a.py";`)
	assert.Contains(t, body, "EventSource")
}

func TestGetDocument_SelectsDocument(t *testing.T) {
	sessions, _, _ := newSessions()
	handler := NewHandler(sessions)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/document?doc=/work/b.py", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `<div id="arepl">b</div>`, w.Body.String())
}

func TestLookup_NotFound(t *testing.T) {
	sessions, _, _ := newSessions()
	handler := NewHandler(sessions)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/state?doc=/work/missing.py", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	NewHandler(fakeSessions{}).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetState(t *testing.T) {
	sessions, a, _ := newSessions()
	a.state = render.State{
		Variables: domain.Variables{{Name: "x", Value: "1"}},
		Elapsed:   2 * time.Millisecond,
		Runs:      1,
	}
	handler := NewHandler(sessions)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/state", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/work/a.py", resp["document"])
	assert.Equal(t, "improvement", resp["timing"])
	assert.EqualValues(t, 1, resp["runs"])
}

func TestRunNow(t *testing.T) {
	sessions, a, b := newSessions()
	b.runErr = domain.ErrNotRunning
	handler := NewHandler(sessions)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/run?doc=/work/a.py", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, a.runs)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/run?doc=/work/b.py", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "interpreter not running")
}

func TestHealthAndInfo(t *testing.T) {
	sessions, _, _ := newSessions()
	handler := NewHandler(sessions)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/info", nil))
	var info map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "arepl-preview", info["app"])
	assert.Len(t, info["documents"], 2)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "arepl_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	sessions, _, _ := newSessions()
	w := httptest.NewRecorder()
	NewHandler(sessions, WithGatherer(reg)).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "arepl_test_total 1")

	w = httptest.NewRecorder()
	NewHandler(sessions).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	sessions, _, _ := newSessions()
	w := httptest.NewRecorder()
	NewHandler(sessions).ServeHTTP(w, httptest.NewRequest("OPTIONS", "/run", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents(t *testing.T) {
	sessions, a, _ := newSessions()
	handler := NewHandler(sessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/events?doc=/work/a.py", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return a.subscribers() == 1 }, time.Second, 5*time.Millisecond)
	a.publish("<div>\nline two\n</div>")
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SSE handler did not return")
	}

	output := w.Body.String()
	assert.True(t, strings.HasPrefix(output, "event: ping\ndata: connected\n\n"))
	assert.Contains(t, output, "event: render\ndata: \"\\u003cdiv\\u003e\\nline two\\n\\u003c/div\\u003e\"\n\n")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}

func TestSubscribeEvents_SessionClosed(t *testing.T) {
	closed := make(chan string)
	close(closed)
	sessions := fakeSessions{"/work/a.py": &fakePreview{doc: "x"}}

	w := httptest.NewRecorder()
	NewHandler(closedSessions{fakeSessions: sessions, ch: closed}).ServeHTTP(w, httptest.NewRequest("GET", "/events", nil))
	assert.Contains(t, w.Body.String(), "event: closed\ndata: \"/work/a.py\"")
}

// closedSessions hands out previews whose stream has already ended.
type closedSessions struct {
	fakeSessions
	ch chan string
}

func (s closedSessions) Get(doc domain.DocumentID) (ports.Preview, bool) {
	p, ok := s.fakeSessions.Get(doc)
	if !ok {
		return nil, false
	}
	return closedPreview{Preview: p, ch: s.ch}, true
}

type closedPreview struct {
	ports.Preview
	ch chan string
}

func (p closedPreview) Subscribe() (<-chan string, func()) {
	return p.ch, func() {}
}
