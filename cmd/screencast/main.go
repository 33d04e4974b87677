package main

import (
	"context"
	"errors"
	goos "os"
	"time"

	"github.com/castline/screencast/pkg/caster"
	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/os"
	"github.com/castline/screencast/pkg/thread"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func run() {
	conf, err := config.ParseFlags("screencast", goos.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config")
	}

	log := logger.NewConsole(conf.Debug, "h", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	c, err := caster.New(conf, caster.Terminal{In: goos.Stdin, Out: goos.Stdout}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}
	c.Start()
	log.Info().Msgf("signaling at ws://%v/signal", c.Address())

	term := os.ExpectTermination()
	<-term.Done()
	log.Info().Msgf("%v, shutting down", term.Signal())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}

func main() {
	thread.MainWrapMaybe(run)
}
