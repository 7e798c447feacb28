// Command classrelay runs the real-time classroom translation relay.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"classrelay/internal/app"
	"classrelay/internal/config"
	"classrelay/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	logging.Configure(logging.Config{Level: *logLevel})
	log := logging.WithComponent("main")

	cfg := config.LoadWithPrecedence(*configPath)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}
