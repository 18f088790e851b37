package main

import (
	"flag"
	"fmt"
	"os"

	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := log.WithComponent(log.New(cfg.Environment), "migrate")

	var (
		dsn   = flag.String("dsn", cfg.Postgres.DSN, "PostgreSQL DSN (defaults to postgres.dsn)")
		steps = flag.Int("steps", 1, "migrations to roll back with down")
	)
	flag.Parse()

	if *dsn == "" {
		logger.Fatal().Msg("missing DSN: provide via -dsn or PORTFOLIO_POSTGRES_DSN")
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dsn DSN] [-steps N] up|down|status")
		os.Exit(2)
	}

	switch flag.Arg(0) {
	case "up":
		err = database.MigrateUp(*dsn, logger)
	case "down":
		err = database.MigrateDown(*dsn, *steps, logger)
	case "status":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = database.MigrationVersion(*dsn)
		if err == nil {
			fmt.Printf("version %d dirty=%t\n", version, dirty)
		}
	default:
		logger.Fatal().Str("command", flag.Arg(0)).Msg("unknown command")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("migration failed")
	}
}
