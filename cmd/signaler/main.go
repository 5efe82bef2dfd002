package main

import (
	"context"
	goflag "flag"

	flag "github.com/spf13/pflag"

	"github.com/huddlelab/huddle/pkg/config"
	"github.com/huddlelab/huddle/pkg/logger"
	"github.com/huddlelab/huddle/pkg/os"
	"github.com/huddlelab/huddle/pkg/signaler"
)

var Version = "?"

func main() {
	conf := config.NewSignalerConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Signaler.Debug, "sig", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	s := signaler.New(conf, log)
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := s.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
