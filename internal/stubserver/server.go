// Package stubserver is an in-memory stand-in for the VERITAS analysis service.
// It serves the same four stage endpoints with randomized but internally consistent
// results, so the console and CLI can be exercised without the real engine.
package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"veritas/internal/config"
	"veritas/internal/logging"
	"veritas/internal/types"
)

const (
	engineBanner   = "VERITAS Reasoning Engine v1.0"
	maxUploadBytes = 64 << 20
	benignCutoff   = 30
)

// Options configures a Server.
type Options struct {
	// Seed fixes the random source; zero seeds from the clock.
	Seed int64
	// Latency is added before every stage response.
	Latency time.Duration
}

// record is one stored scan.
type record struct {
	triage       types.TriageResult
	submittedAt  time.Time
	adjudication *types.AdjudicationResult
}

// Server holds scans in memory. Safe for concurrent use.
type Server struct {
	latency time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	scans map[string]*record
}

// New creates a server.
func New(opts Options) *Server {
	seed := uint64(opts.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Server{
		latency: opts.Latency,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		scans:   make(map[string]*record),
	}
}

// NewFromConfig creates a server from the stub_server config section.
func NewFromConfig(cfg *config.Config) *Server {
	return New(Options{Seed: cfg.StubServer.Seed, Latency: cfg.GetStubLatency()})
}

// Routes returns the service router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/", s.handleRoot)
	r.Route("/scan", func(r chi.Router) {
		r.Post("/", s.handleScan)
		r.Route("/{scanID}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.With(s.delay).Get("/deep_dive", s.handleDeepDive)
			r.With(s.delay).Post("/supreme_court", s.handleSupremeCourt)
			r.With(s.delay).Post("/firewall_reconstruction", s.handleReconstruction)
		})
	})
	return r
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
// ready, if non-nil, receives the bound address once the listener is open.
func (s *Server) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr())
	}
	logging.Stub("stub backend listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Stub("stub backend shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

// Len returns the number of stored scans.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans)
}

func (s *Server) lookup(id string) (*record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.scans[id]
	return rec, ok
}

// delay holds stage responses for the configured latency.
func (s *Server) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			t := time.NewTimer(s.latency)
			defer t.Stop()
			select {
			case <-t.C:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Get(logging.CategoryStub).
			With("request_id", middleware.GetReqID(r.Context())).
			Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryStub).Warn("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "online", "engine": engineBanner})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(chi.URLParam(r, "scanID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}
	writeJSON(w, http.StatusOK, rec.triage)
}
