package handler

import (
	"gridroom/internal/app/hub"
	"gridroom/internal/configs"
	"gridroom/internal/pkg/pow"
)

type AppDeps struct {
	Hub    *hub.Hub
	Config *configs.AppConfig
	PoW    *pow.Manager
}
