package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "dmrelay/pkg/logx"
)

// Server exposes a Metrics registry over HTTP.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log logx.Logger
}

// ListenOption customizes the metrics listener.
type ListenOption func(mux *http.ServeMux)

// WithPprof mounts the runtime profiling handlers under /debug/pprof/.
func WithPprof() ListenOption {
	return func(mux *http.ServeMux) {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
}

// Listen binds addr and starts serving path in the background.
func Listen(m *Metrics, addr, path string, log logx.Logger, opts ...ListenOption) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	for _, o := range opts {
		o(mux)
	}
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
		log: log,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", logx.Err(err))
		}
	}()
	log.Info("metrics server listening", logx.String("addr", ln.Addr().String()), logx.String("path", path))
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
