package main

import (
	"flag"

	"github.com/OFFIS-RIT/leech/internal/migrate"
	"github.com/OFFIS-RIT/leech/internal/util"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	down := flag.Bool("down", false, "roll migrations back instead of applying them")
	steps := flag.Int("steps", 0, "number of migrations to apply or roll back (0 = all)")
	path := flag.String("path", util.GetEnvString("MIGRATIONS_PATH", "migrations"), "directory holding the migrations")
	flag.Parse()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Format: util.GetEnv("LOG_FORMAT"),
		Prefix: "migrate",
	})
	logger.Init(consoleLogger)

	dir := migrate.Up
	if *down {
		dir = migrate.Down
	}
	if err := migrate.Run(util.GetEnv("DATABASE_URL"), *path, dir, *steps); err != nil {
		logger.Fatal("Migration failed", "err", err)
	}
}
