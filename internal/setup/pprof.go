package setup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"go.uber.org/zap"
)

// debugServer exposes the runtime profiles on a loopback port.
type debugServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// newDebugMux registers the profile handlers on a private mux so nothing
// else registered on the default mux is exposed.
func newDebugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

// startDebugServer binds localhost:port and serves profiles in the background.
func startDebugServer(port int, logger *zap.Logger) (*debugServer, error) {
	addr := fmt.Sprintf("localhost:%d", port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &debugServer{
		srv: &http.Server{
			Handler:           newDebugMux(),
			ReadHeaderTimeout: 10 * time.Second,
			// CPU profiles and traces stream for as long as requested
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
		logger: logger.Named("pprof"),
	}

	go func() {
		s.logger.Info("Serving profiles", zap.String("address", addr))

		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Profile server stopped", zap.Error(err))
		}
	}()

	return s, nil
}

// Shutdown stops accepting connections and waits for open requests.
func (s *debugServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
