package main

import (
	"github.com/OFFIS-RIT/leech/internal/server"
	"github.com/OFFIS-RIT/leech/internal/util"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Format: util.GetEnv("LOG_FORMAT"),
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}
