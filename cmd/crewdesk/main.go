// Command crewdesk assigns sound crew to theatre events.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagecrew/crewdesk/cmd/crewdesk/commands"
)

// Set with -ldflags "-X main.Version=..." at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	log.Logger = bootstrapLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, Version, Commit, BuildDate)
	interrupted := ctx.Err() != nil
	stop()

	if interrupted {
		log.Warn().Msg("Interrupted")
	}
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(commands.ExitCode(err))
	}
}

// bootstrapLogger serves until the configuration has been read.
// CREWDESK_LOG_LEVEL raises or lowers it.
func bootstrapLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(os.Getenv("CREWDESK_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
}
