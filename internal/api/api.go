package api

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/curaious/llmux/internal/config"
	"github.com/curaious/llmux/pkg/gateway"
)

// Server is the HTTP front of the gateway.
type Server struct {
	srv     *fasthttp.Server
	addr    string
	gateway *gateway.Gateway
}

func New(conf *config.Config, gw *gateway.Gateway) *Server {
	s := &Server{
		srv:     &fasthttp.Server{},
		addr:    conf.Server.Addr(),
		gateway: gw,
	}

	s.srv.Handler = s.initRoutes()

	return s
}

// Start runs the server and blocks until an interrupt, then shuts down
// gracefully.
func (s *Server) Start() {
	slog.Info("Starting server", slog.String("addr", s.addr))
	go func() {
		if err := s.srv.ListenAndServe(s.addr); err != nil {
			slog.Error("Server shutdown", slog.Any("error", err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	slog.Info("Received interrupt...")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s.shutdown(ctx)
}

func (s *Server) shutdown(_ context.Context) {
	slog.Info("Gracefully shutting down server...")
	if err := s.srv.Shutdown(); err != nil {
		slog.Error("Failed to shutdown the server", slog.Any("error", err))
	}
	slog.Info("Server shutdown!")
}
