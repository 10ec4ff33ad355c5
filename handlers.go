package main

import (
	"encoding/json"
	"fmt"
	"image/color"
	"image/png"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kwv/joneslab/jones"
)

// indexHTML is the page served at the root. The two format verbs carry an
// optional ?bench= query through to the embedded images.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>joneslab</title>
    <meta http-equiv="refresh" content="5">
    <style>
        body {
            margin: 0;
            background-color: #1a1a1a;
            display: flex;
            flex-direction: column;
            align-items: center;
            justify-content: center;
            min-height: 100vh;
        }
        img {
            max-width: 92vw;
            background-color: #ffffff;
        }
        .ellipse { height: 62vh; object-fit: contain; }
        .projections { height: 28vh; object-fit: contain; margin-top: 2vh; }
    </style>
</head>
<body>
    <img class="ellipse" src="/ellipse.svg%s" alt="Polarization ellipse">
    <img class="projections" src="/projections.svg%s" alt="Field projections">
</body>
</html>
`

// traceAdder is the surface shared by the raster and vector renderers that
// the handlers need to fill in a bench's traces.
type traceAdder interface {
	AddTraceHex(label string, s jones.PolarizationState, hex string)
	AddMutedTraceHex(label string, s jones.PolarizationState, hex string)
	AddMutedTrace(label string, s jones.PolarizationState, c color.RGBA)
}

// addBenchTraces fills a renderer from a bench snapshot: the live input
// faded behind the derived output when the element angles are known, the
// input alone otherwise, and the target faded in green when one is set.
func addBenchTraces(r traceAdder, snap *jones.BenchSnapshot) {
	hex := snap.Input.Color
	if snap.Output != nil {
		r.AddMutedTraceHex("input", snap.Input.State, hex)
		r.AddTraceHex("output", *snap.Output, hex)
	} else {
		r.AddTraceHex("input", snap.Input.State, hex)
	}
	if snap.Target != nil {
		r.AddMutedTrace("target", snap.Target.State, jones.DefaultTraceColors()[2])
	}
}

// httpServer serves the live bench figures and summaries
type httpServer struct {
	tracker *jones.BenchTracker
	config  *jones.Config
	log     zerolog.Logger
}

// newHTTPServer builds the HTTP handler for the live service. A request's
// bench is the ?bench= query parameter, falling back to the first
// configured bench and then to the first bench the tracker has seen.
func newHTTPServer(tracker *jones.BenchTracker, config *jones.Config, log zerolog.Logger) http.Handler {
	s := &httpServer{
		tracker: tracker,
		config:  config,
		log:     log.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/summary.json", s.handleSummary)
	r.Get("/ellipse.png", s.handleEllipsePNG)
	r.Get("/ellipse.svg", s.handleEllipseSVG)
	r.Get("/projections.png", s.handleProjectionsPNG)
	r.Get("/projections.svg", s.handleProjectionsSVG)

	return r
}

// logRequests logs every request once it has been served
func (s *httpServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		s.log.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("remote", req.RemoteAddr).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}

// benchID resolves which bench a request refers to. Empty means no bench
// is known at all.
func (s *httpServer) benchID(req *http.Request) string {
	if id := req.URL.Query().Get("bench"); id != "" {
		return id
	}
	if s.config != nil {
		if id := s.config.DefaultBench(); id != "" {
			return id
		}
	}
	if benches := s.tracker.Benches(); len(benches) > 0 {
		return benches[0]
	}
	return ""
}

// drawableSnapshot fetches the snapshot for the request's bench, writing
// the 503 response itself when there is nothing to draw yet.
func (s *httpServer) drawableSnapshot(w http.ResponseWriter, req *http.Request) (*jones.BenchSnapshot, bool) {
	id := s.benchID(req)
	if id == "" {
		http.Error(w, "No bench states available", http.StatusServiceUnavailable)
		return nil, false
	}
	snap, ok := s.tracker.Snapshot(id)
	if !ok || snap.Input == nil {
		http.Error(w, fmt.Sprintf("No input state for bench %q", id), http.StatusServiceUnavailable)
		return nil, false
	}
	return snap, true
}

func (s *httpServer) handleIndex(w http.ResponseWriter, req *http.Request) {
	query := ""
	if bench := req.URL.Query().Get("bench"); bench != "" {
		query = "?bench=" + url.QueryEscape(bench)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexHTML, query, query)
}

func (s *httpServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		Status    string    `json:"status"`
		HasStates bool      `json:"hasStates"`
		Benches   []string  `json:"benches"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Status:    "ok",
		HasStates: s.tracker.HasStates(),
		Benches:   s.tracker.Benches(),
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn().Err(err).Msg("Encoding health response failed")
	}
}

func (s *httpServer) handleSummary(w http.ResponseWriter, req *http.Request) {
	id := s.benchID(req)
	if id == "" {
		http.Error(w, "No bench states available", http.StatusServiceUnavailable)
		return
	}
	snap, ok := s.tracker.Snapshot(id)
	if !ok {
		http.Error(w, fmt.Sprintf("No state for bench %q", id), http.StatusServiceUnavailable)
		return
	}

	resp := struct {
		Bench    string               `json:"bench"`
		Input    string               `json:"input,omitempty"`
		Output   string               `json:"output,omitempty"`
		Snapshot *jones.BenchSnapshot `json:"snapshot"`
	}{Bench: id, Snapshot: snap}
	if snap.Input != nil {
		resp.Input = jones.Describe(snap.Input.State)
	}
	if snap.Output != nil {
		resp.Output = jones.Describe(*snap.Output)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn().Err(err).Msg("Encoding summary response failed")
	}
}

func (s *httpServer) handleEllipsePNG(w http.ResponseWriter, req *http.Request) {
	snap, ok := s.drawableSnapshot(w, req)
	if !ok {
		return
	}

	r := jones.NewEllipseRenderer()
	if s.config != nil {
		r.Configure(s.config.Render)
	}
	// The strip has endpoints of its own
	r.Projections = false
	addBenchTraces(r, snap)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, r.Render()); err != nil {
		s.log.Warn().Err(err).Msg("Encoding ellipse PNG failed")
	}
}

func (s *httpServer) handleEllipseSVG(w http.ResponseWriter, req *http.Request) {
	snap, ok := s.drawableSnapshot(w, req)
	if !ok {
		return
	}

	r := jones.NewVectorRenderer()
	if s.config != nil {
		r.Configure(s.config.Render)
	}
	addBenchTraces(r, snap)

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	if err := r.RenderToSVG(w); err != nil {
		s.log.Warn().Err(err).Msg("Rendering ellipse SVG failed")
	}
}

func (s *httpServer) handleProjectionsPNG(w http.ResponseWriter, req *http.Request) {
	snap, ok := s.drawableSnapshot(w, req)
	if !ok {
		return
	}

	r := jones.NewVectorRenderer()
	if s.config != nil {
		r.Configure(s.config.Render)
	}
	addBenchTraces(r, snap)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := r.RenderProjectionsToPNG(w); err != nil {
		s.log.Warn().Err(err).Msg("Rendering projections PNG failed")
	}
}

func (s *httpServer) handleProjectionsSVG(w http.ResponseWriter, req *http.Request) {
	snap, ok := s.drawableSnapshot(w, req)
	if !ok {
		return
	}

	r := jones.NewVectorRenderer()
	if s.config != nil {
		r.Configure(s.config.Render)
	}
	addBenchTraces(r, snap)

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	if err := r.RenderProjectionsToSVG(w); err != nil {
		s.log.Warn().Err(err).Msg("Rendering projections SVG failed")
	}
}
