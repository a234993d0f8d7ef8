package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// MetricsServer exposes /metrics on a listener until its context ends.
type MetricsServer struct {
	srv *http.Server
	ln  net.Listener
}

// ListenMetrics binds addr and serves m.Handler at /metrics in the background.
func ListenMetrics(addr string, m *Metrics) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return &MetricsServer{srv: srv, ln: ln}, nil
}

// Addr is the bound address, useful when addr was ":0".
func (s *MetricsServer) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
