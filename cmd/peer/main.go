package main

import (
	goflag "flag"

	flag "github.com/spf13/pflag"

	"github.com/huddlelab/huddle/pkg/config"
	"github.com/huddlelab/huddle/pkg/logger"
	"github.com/huddlelab/huddle/pkg/os"
	"github.com/huddlelab/huddle/pkg/peer"
	"github.com/huddlelab/huddle/pkg/rtc"
)

var Version = "?"

func main() {
	conf := config.NewPeerConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Peer.Debug, "peer", false)

	log.Info().Msgf("version %s", Version)
	if conf.Peer.Room == "" {
		log.Fatal().Msg("a room id is required (-room)")
	}

	api, err := rtc.NewApiFactory(conf.Webrtc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api init")
	}
	factory := func(ev peer.SessionEvents) (peer.Session, error) {
		return rtc.NewSession(api, log, ev)
	}

	c := peer.NewClient(conf, factory, log)
	if err := c.Connect(); err != nil {
		log.Fatal().Err(err).Msg("couldn't reach the signaling relay")
	}
	log.Info().Str("room", conf.Peer.Room).Msg("negotiating")

	select {
	case <-os.ExpectTermination():
		c.Leave()
	case <-c.Done:
	}
}
