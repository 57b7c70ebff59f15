package workers

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"interoprelay/metrics"
	"interoprelay/workers/handlers"
)

type HTTPServer struct {
	addr    string
	useSSL  bool
	handler http.Handler
	logger  *zap.SugaredLogger
}

// NewRouter wires the API routes, promHandler is mounted at /metrics when not nil
func NewRouter(h *handlers.Handlers, rec metrics.Recorder, promHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	if rec != nil {
		r.Use(metrics.Middleware(rec))
	}

	r.Options("/*", CORSHeaders)

	r.Get("/health", h.HealthCheck)
	r.Get("/state", h.State)
	r.Get("/interop-transaction-status", h.InteropTransactionStatus)
	r.Get("/stats/failed", h.GetFailedTransactions)

	if promHandler != nil {
		r.Handle("/metrics", promHandler)
	}
	return r
}

func NewHTTPServer(addr string, useSSL bool, handler http.Handler, logger *zap.SugaredLogger) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		useSSL:  useSSL,
		handler: handler,
		logger:  logger.Named("http"),
	}
}

// Run serves until ctx is done and then shuts down with a 5 second grace period
func (s *HTTPServer) Run(ctx context.Context) error {
	s.logger.Info("Starting HTTP service")

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.useSSL {
		cert, err := tls.LoadX509KeyPair("certchain.pem", "privatekey.pem")
		if err != nil {
			return err
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.useSSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Infof("HTTP service started on %s", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("HTTP service stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("HTTP service shutdown error: %+v", err)
		return err
	}
	s.logger.Info("HTTP service shutdown normal")
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, X-Requested-With")
}
