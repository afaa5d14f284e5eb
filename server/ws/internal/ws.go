// SPDX-License-Identifier: ice License 1.0

package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ChristianChiarulli/nostr-sync-relay/server/ws/internal/config"
)

func NewWSServer(routes RegisterRoutes, cfg *config.Config) Server {
	router := gin.New()
	router.Use(gin.Recovery())

	ctx := context.Background()
	routes.RegisterRoutes(ctx, router)

	return &srv{
		cfg:    cfg,
		router: router,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%v", cfg.Port),
			Handler: router,
		},
	}
}

func (s *srv) ListenAndServe(ctx context.Context, cancel context.CancelFunc) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go s.startServer(cancel)

	<-ctx.Done()
	s.shutDown()
}

func (s *srv) startServer(cancel context.CancelFunc) {
	defer log.Printf("server stopped listening")
	log.Printf("server started listening on %v...", s.cfg.Port)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, io.EOF) {
		log.Printf("ERROR: server.ListenAndServe failed: %v", err)
		cancel()
	}
}

func (s *srv) shutDown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace) //nolint:contextcheck // Graceful shutdown uses its own deadline.
	defer cancel()

	log.Printf("shutting down server...")
	if err := s.server.Shutdown(ctx); err != nil {
		log.Printf("ERROR: server shutdown failed: %v", err)
	} else {
		log.Printf("server shutdown succeeded")
	}
}
