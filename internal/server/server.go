// Package server exposes metrics, health and debug views over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/xraph/irqstat/internal/engine"
	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink/memory"
	"github.com/xraph/irqstat/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Table is the read side of a collection engine.
type Table interface {
	Name() string
	Source() string
	LastReport() engine.CycleReport
	View() store.View
}

// HealthFunc reports whether a component is healthy.
type HealthFunc func(ctx context.Context) error

// Options wires the server to the rest of the process. Nil fields disable
// the corresponding routes.
type Options struct {
	Metrics  http.Handler
	Memory   *memory.Sink
	Tables   []Table
	Health   map[string]HealthFunc
	Version  string
	Instance string
}

// Server is the HTTP front of the collector.
type Server struct {
	options Options
	router  chi.Router
	logger  logger.Logger
	started time.Time
}

// New builds the router.
func New(options Options, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	s := &Server{
		options: options,
		router:  chi.NewRouter(),
		logger:  log.Named("server"),
		started: time.Now(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	if options.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", options.Metrics)
	}

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/debug", func(r chi.Router) {
		if options.Memory != nil {
			r.Get("/series", s.handleSeries)
		}

		r.Get("/tables", s.handleTables)
		r.Get("/tables/{name}", s.handleTable)
	})

	return s
}

// ServeHTTP dispatches requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info("http server stopped")

	return nil
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Instance   string            `json:"instance,omitempty"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Version:    s.options.Version,
		Instance:   s.options.Instance,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Components: make(map[string]string, len(s.options.Health)),
	}

	code := http.StatusOK

	for name, check := range s.options.Health {
		if err := check(r.Context()); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable

			continue
		}

		resp.Components[name] = "ok"
	}

	s.writeJSON(w, code, resp)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	cfg := memory.DefaultJSONConfig()
	cfg.Pretty = r.URL.Query().Get("pretty") != ""

	data, err := s.options.Memory.Export(cfg)
	if err != nil {
		s.logger.Error("series export failed", logger.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type tableResponse struct {
	Name   string             `json:"name"`
	Source string             `json:"source"`
	Report engine.CycleReport `json:"last_cycle"`
	Store  *store.View        `json:"store,omitempty"`
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	withStore := r.URL.Query().Get("store") != ""
	out := make([]tableResponse, 0, len(s.options.Tables))

	for _, t := range s.options.Tables {
		out = append(out, describe(t, withStore))
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	for _, t := range s.options.Tables {
		if t.Name() == name {
			s.writeJSON(w, http.StatusOK, describe(t, true))
			return
		}
	}

	http.Error(w, "unknown table "+name, http.StatusNotFound)
}

func describe(t Table, withStore bool) tableResponse {
	resp := tableResponse{Name: t.Name(), Source: t.Source(), Report: t.LastReport()}

	if withStore {
		view := t.View()
		resp.Store = &view
	}

	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("response encoding failed", logger.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
