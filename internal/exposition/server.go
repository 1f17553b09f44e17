// Package exposition serves the registry to Prometheus scrapers.
package exposition

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	MetricsPath       = "/metrics"
	readHeaderTimeout = 10 * time.Second
)

// Server exposes a gatherer in the Prometheus text format on MetricsPath and on every
// path no other handler claims. Scrapes only read the registry and never wait for a
// publish cycle.
type Server struct {
	addr string
	log  *logrus.Entry
	mux  *http.ServeMux
	srv  *http.Server

	mu   sync.Mutex
	ln   net.Listener
	done chan error
}

func New(addr string, gatherer prometheus.Gatherer, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("subsystem", "exposition")

	metrics := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      log,
		ErrorHandling: promhttp.ContinueOnError,
	})
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, metrics)
	mux.Handle("/", metrics)

	return &Server{
		addr: addr,
		log:  log,
		mux:  mux,
		srv:  &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout},
		done: make(chan error, 1),
	}
}

// Handle mounts an extra handler, such as sample ingestion, next to the metrics.
// It must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the server's routing handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the listen address and serves in the background. A bind failure, such as a
// port already in use, is returned immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Infof("Serving metrics on http://%s%s", ln.Addr(), MetricsPath)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
		close(s.done)
	}()
	return nil
}

// Addr reports the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Done delivers the serve error, nil after a clean Shutdown.
func (s *Server) Done() <-chan error {
	return s.done
}

// Shutdown stops accepting scrapes and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
