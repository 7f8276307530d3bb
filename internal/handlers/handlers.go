package handlers

import (
	"log/slog"

	"pulsekeep/internal/dependencies"
	"pulsekeep/internal/services"
)

type Handlers struct {
	checkService    *services.CheckService
	channelService  *services.ChannelService
	pingService     *services.PingService
	maxPingBodySize int64
	logger          *slog.Logger
}

func NewHandlers(container *dependencies.Container) *Handlers {
	return &Handlers{
		checkService:    container.CheckService,
		channelService:  container.ChannelService,
		pingService:     container.PingService,
		maxPingBodySize: container.Config.Server.MaxPingBodySize,
		logger:          slog.Default(),
	}
}
