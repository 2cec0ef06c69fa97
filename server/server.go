package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/techagentng/dmchat/config"
	"github.com/techagentng/dmchat/realtime"
	"github.com/techagentng/dmchat/services"
	"go.uber.org/zap"
)

// Server serves the HTTP API and the websocket endpoint.
type Server struct {
	Config          *config.Config
	Logger          *zap.Logger
	AuthService     services.AuthService
	ChatService     services.ChatService
	PresenceService services.PresenceService
	Hub             *realtime.Hub
}

// Start serves until SIGINT or SIGTERM, then drains HTTP requests and
// closes websocket channels.
func (s *Server) Start() error {
	r := s.setupRouter()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Config.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.Logger.Info("server started", zap.Int("port", s.Config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case sig := <-quit:
		s.Logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.Logger.Error("http shutdown", zap.Error(err))
	}
	if err := s.Hub.Shutdown(ctx); err != nil {
		s.Logger.Error("websocket shutdown", zap.Error(err))
		return err
	}
	s.Logger.Info("server exiting")
	return nil
}
