package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"InvoiceRecon/api/constants"
	"InvoiceRecon/internal/serviceiface"
)

type GatewayService struct {
	config   map[string]interface{}
	handlers *Handlers
	server   *http.Server
	log      zerolog.Logger
}

func NewGatewayService(cfg map[string]interface{}, ing Ingester, ping Pinger, log zerolog.Logger) serviceiface.Service {
	return &GatewayService{config: cfg, handlers: NewHandlers(ing, ping, log), log: log}
}

func (s *GatewayService) Name() string {
	return "gateway"
}

func (s *GatewayService) Start() error {
	port := constants.DefaultGatewayPort
	switch v := s.config["port"].(type) {
	case int:
		port = v
	case float64:
		port = int(v)
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(s.handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Info().Int("port", port).Msg("API Gateway started")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("gateway server failed")
		}
	}()
	return nil
}

func (s *GatewayService) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
