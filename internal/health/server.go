// Package health serves the liveness, readiness, metrics and debug
// endpoints of the controller.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/controller"
	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Check is one named readiness condition. A nil error means ready.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// WorkloadStatuses exposes per-workload controller state.
type WorkloadStatuses interface {
	Statuses() []controller.Status
	Status(ref model.WorkloadRef) (controller.Status, bool)
}

// ActiveErrors returns the currently active controller errors.
type ActiveErrors interface {
	GetActiveErrors() []autoscalererrors.ControllerError
}

// StoreStats reports informer cache contents per resource type.
type StoreStats interface {
	ItemCounts() map[string]int
	LastUpdatedTimes() map[string]int64
}

// Options configures a Server. Only Metrics is required.
type Options struct {
	// Port 0 lets the OS pick a free port.
	Port        int
	EnableDebug bool
	Metrics     *observability.Metrics
	Checks      []Check
	Workloads   WorkloadStatuses
	Errors      ActiveErrors
	Store       StoreStats
}

const checkTimeout = 2 * time.Second

// Server exposes health, readiness, metrics, and debug endpoints.
type Server struct {
	httpServer *http.Server
	opts       Options
	listener   net.Listener
}

// NewServer creates the server and its routes. When EnableDebug is set,
// pprof and the /debug endpoints are registered.
func NewServer(opts Options) *Server {
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{}))

	if opts.EnableDebug {
		r.Route("/debug", func(r chi.Router) {
			r.HandleFunc("/pprof/*", pprof.Index)
			r.HandleFunc("/pprof/cmdline", pprof.Cmdline)
			r.HandleFunc("/pprof/profile", pprof.Profile)
			r.HandleFunc("/pprof/symbol", pprof.Symbol)
			r.HandleFunc("/pprof/trace", pprof.Trace)

			r.Get("/workloads", s.handleWorkloads)
			r.Get("/workloads/{kind}/{namespace}/{name}", s.handleWorkload)
			r.Get("/errors", s.handleErrors)
			r.Get("/store", s.handleStore)
		})
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address, resolved once Start has run.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("health server listen: %w", err)
	}
	s.listener = ln
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server stopped", "error", err)
		}
	}()
	slog.Info("health server listening", "addr", s.httpServer.Addr, "debug", s.opts.EnableDebug)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run starts the server and stops it when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readiness struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	res := readiness{Ready: true}
	if len(s.opts.Checks) > 0 {
		res.Checks = make(map[string]string, len(s.opts.Checks))
	}
	for _, c := range s.opts.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Fn(ctx)
		cancel()
		if err != nil {
			res.Ready = false
			res.Checks[c.Name] = err.Error()
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	status := http.StatusOK
	if !res.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (s *Server) handleWorkloads(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Workloads == nil {
		writeJSON(w, http.StatusOK, []controller.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Workloads.Statuses())
}

func (s *Server) handleWorkload(w http.ResponseWriter, r *http.Request) {
	ref, err := model.ParseWorkloadRef(chi.URLParam(r, "kind") + "/" +
		chi.URLParam(r, "namespace") + "/" + chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if s.opts.Workloads == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workload not managed"})
		return
	}
	st, ok := s.opts.Workloads.Status(ref)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workload not managed"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleErrors(w http.ResponseWriter, _ *http.Request) {
	errs := []autoscalererrors.ControllerError{}
	if s.opts.Errors != nil {
		errs = append(errs, s.opts.Errors.GetActiveErrors()...)
	}
	writeJSON(w, http.StatusOK, errs)
}

type storeStats struct {
	Items       map[string]int   `json:"items"`
	LastUpdated map[string]int64 `json:"last_updated_ms"`
}

func (s *Server) handleStore(w http.ResponseWriter, _ *http.Request) {
	res := storeStats{Items: map[string]int{}, LastUpdated: map[string]int64{}}
	if s.opts.Store != nil {
		res.Items = s.opts.Store.ItemCounts()
		res.LastUpdated = s.opts.Store.LastUpdatedTimes()
	}
	writeJSON(w, http.StatusOK, res)
}
