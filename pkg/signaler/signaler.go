// Package signaler implements the signaling relay: room membership
// tracking and message forwarding between participants negotiating
// direct peer connections.
package signaler

import (
	"context"
	"net/http"

	"github.com/huddlelab/huddle/pkg/config"
	"github.com/huddlelab/huddle/pkg/logger"
	"github.com/huddlelab/huddle/pkg/monitoring"
	"github.com/huddlelab/huddle/pkg/network/httpx"
	"github.com/huddlelab/huddle/pkg/service"
)

type Signaler struct {
	conf     config.SignalerConfig
	log      *logger.Logger
	services service.Group
}

func New(conf config.SignalerConfig, log *logger.Logger) *Signaler {
	s := &Signaler{conf: conf, log: log}

	registry := NewRegistry(conf.Signaler.Rooms.MaxPeers)
	router := NewRouter(registry, log)

	h, err := httpx.NewServer(
		conf.Signaler.Server.GetAddr(),
		func(*httpx.Server) httpx.Handler {
			mux := http.NewServeMux()
			mux.HandleFunc("/ws", router.HandleConnection)
			return mux
		},
		httpx.WithServerConfig(conf.Signaler.Server),
		httpx.WithLogger(log),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't init the signaling server")
	}
	s.services.Add(h)
	s.services.AddIf(conf.Signaler.Monitoring.IsEnabled(),
		monitoring.New(conf.Signaler.Monitoring, "sig", log))
	return s
}

func (s *Signaler) Start() { s.services.Start() }

func (s *Signaler) Shutdown(ctx context.Context) error { return s.services.Shutdown(ctx) }
