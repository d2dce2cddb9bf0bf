package main

import (
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/config"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/db"
	clog "github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/log"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/server"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/service"
	"github.com/RishiVykunta/Real-Time-SaaS-Dashboard/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	if err := db.SeedAdmin(gdb, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("db seed admin")
	}

	hub := ws.NewHub(service.NewSessionService(gdb))
	go hub.Run()

	r := server.SetupRouter(cfg, gdb, hub)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
