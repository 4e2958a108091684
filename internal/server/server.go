package server

import (
	"net/http"
	"time"

	"github.com/scythe504/zombie-mafia-backend/internal/config"
	"github.com/scythe504/zombie-mafia-backend/internal/game"
	"github.com/scythe504/zombie-mafia-backend/internal/lobby"
	"github.com/scythe504/zombie-mafia-backend/internal/notify"
	"github.com/scythe504/zombie-mafia-backend/internal/voice"
)

type Server struct {
	port    int
	manager *game.Manager
	lobby   *lobby.Lobby
	hub     *notify.Hub
	voice   *voice.Provisioner
	limiter *memberLimiter
}

func NewServer(cfg config.Config, manager *game.Manager, lobby *lobby.Lobby, hub *notify.Hub, voice *voice.Provisioner) *http.Server {
	s := &Server{
		port:    cfg.Port,
		manager: manager,
		lobby:   lobby,
		hub:     hub,
		voice:   voice,
		limiter: newMemberLimiter(cfg.ActionRateLimit, cfg.ActionRateBurst),
	}

	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
