// Package observability serves the daemon's debug HTTP surface: pprof,
// a liveness endpoint and a JSON snapshot of the engine.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"taskmgr/internal/scheduler"
	"taskmgr/pkg/logx"
)

// Config controls the debug HTTP server. An empty Addr disables it.
//
// Binding to a non-loopback address requires a token; the snapshot and
// profile endpoints expose internals that must not leak onto the network
// unauthenticated.
type Config struct {
	Addr  string
	Token string
}

// Server is the debug HTTP endpoint. It is read-only with respect to the
// engine: every handler goes through Snapshot.
type Server struct {
	cfg      Config
	log      logx.Logger
	snapshot func() scheduler.Snapshot
}

func NewServer(cfg Config, snapshot func() scheduler.Snapshot, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, log: log, snapshot: snapshot}
}

func (s *Server) Enabled() bool { return strings.TrimSpace(s.cfg.Addr) != "" }

// Run serves until ctx is done. It returns nil on context cancellation and
// the listen or serve error otherwise.
func (s *Server) Run(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return nil
	}
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("debug http: non-loopback addr requires a token")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/statusz", s.withAuth(s.handleStatus))
	mux.HandleFunc("/debug/pprof/", s.withAuth(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", s.withAuth(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", s.withAuth(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", s.withAuth(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", s.withAuth(hpprof.Trace))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(cctx)
	}()

	s.log.Info("debug http listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""))

	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.snapshot == nil {
		http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
		return
	}
	snap := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(statusView{
		State:       snap.State.String(),
		TickCounter: snap.TickCounter,
		MaxTasks:    snap.MaxTasks,
		Utilization: snap.Utilization,
		Overruns:    snap.Overruns,
		Tasks:       snap.Tasks,
	})
}

// statusView keeps the JSON shape stable regardless of the engine's
// internal snapshot type.
type statusView struct {
	State       string               `json:"state"`
	TickCounter uint32               `json:"tick_counter"`
	MaxTasks    int                  `json:"max_tasks"`
	Utilization uint8                `json:"utilization_percent"`
	Overruns    uint64               `json:"overruns"`
	Tasks       []scheduler.TaskInfo `json:"tasks"`
}

func (s *Server) withAuth(h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got == tok {
			h(w, r)
			return
		}
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") &&
			strings.TrimSpace(strings.TrimPrefix(ah, "Bearer ")) == tok {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
