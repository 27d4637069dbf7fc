package main

import (
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/clock"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/config"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/logger"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/migration"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/server"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domains + HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
