package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/arepl"
	"github.com/aretw0/arepl/internal/logging"
	"github.com/aretw0/arepl/pkg/domain"
	"github.com/aretw0/arepl/pkg/ports"
	"github.com/aretw0/arepl/pkg/render"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the preview panel over HTTP.
type Server struct {
	Sessions ports.PreviewSource
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithGatherer exposes the registry on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger configures the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the preview panel.
func NewHandler(sessions ports.PreviewSource, opts ...Option) http.Handler {
	server := &Server{
		Sessions: sessions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Get("/", server.GetPage)
	r.Get("/document", server.GetDocument)
	r.Get("/state", server.GetState)
	r.Get("/events", server.SubscribeEvents)
	r.Post("/run", server.RunNow)
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	if server.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// lookup resolves the ?doc= parameter, defaulting to the first live document.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (domain.DocumentID, ports.Preview, bool) {
	doc := domain.DocumentID(r.URL.Query().Get("doc"))
	if doc == "" {
		docs := s.Sessions.List()
		if len(docs) == 0 {
			http.Error(w, "No document is being evaluated", http.StatusNotFound)
			return "", nil, false
		}
		doc = docs[0]
	}
	p, ok := s.Sessions.Get(doc)
	if !ok {
		http.Error(w, fmt.Sprintf("No session for %s", doc), http.StatusNotFound)
		return "", nil, false
	}
	return doc, p, true
}

// GetPage handles GET /: the preview document inside a page that reloads it
// on every render event.
func (s *Server) GetPage(w http.ResponseWriter, r *http.Request) {
	doc, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageHTML, p.Document(), jsString(string(doc)))
}

// GetDocument handles GET /document: the bare rendered document.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	_, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, p.Document())
}

type stateResponse struct {
	Document domain.DocumentID `json:"document"`
	Timing   string            `json:"timing"`
	render.State
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	doc, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	state := p.Snapshot()
	resp := stateResponse{Document: doc, Timing: state.Timing().String(), State: state}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("GetState response encode failed", "error", err)
	}
}

// RunNow handles POST /run: the explicit "evaluate now" command.
func (s *Server) RunNow(w http.ResponseWriter, r *http.Request) {
	doc, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := p.RunNow(); err != nil {
		http.Error(w, fmt.Sprintf("Run error: %v", err), http.StatusConflict)
		s.logger.Warn("RunNow failed", "document", doc, "error", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"app":       "arepl-preview",
		"version":   strings.TrimSpace(arepl.Version),
		"documents": s.Sessions.List(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SubscribeEvents handles GET /events: one "render" event per published
// document, as a JSON string so multi-line documents survive SSE framing.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	doc, p, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ch, cancel := p.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to document renders", "document", doc)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "document", doc)
			return
		case msg, ok := <-ch:
			if !ok {
				fmt.Fprintf(w, "event: closed\ndata: %s\n\n", jsString(string(doc)))
				flusher.Flush()
				return
			}
			fmt.Fprintf(w, "event: render\ndata: %s\n\n", jsString(msg))
			flusher.Flush()
		}
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <title>arepl preview</title>
    <style>
        body { font-family: monospace; margin: 1em; }
        .error { color: #c0392b; white-space: pre-wrap; }
        .timing.improvement { color: #27ae60; }
        .timing.regression { color: #c0392b; }
    </style>
</head>
<body>
<div id="preview">%s</div>
<script>
    const doc = %s;
    const source = new EventSource('/events?doc=' + encodeURIComponent(doc));
    source.addEventListener('render', (e) => {
        document.getElementById('preview').innerHTML = JSON.parse(e.data);
    });
    source.addEventListener('closed', () => source.close());
</script>
</body>
</html>
`
