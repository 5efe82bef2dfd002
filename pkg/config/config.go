package config

import (
	"flag"
	"time"
)

type (
	// SignalerConfig is the root config of the relay server.
	SignalerConfig struct {
		Signaler Signaler
		Webrtc   Webrtc
	}
	Signaler struct {
		Debug      bool
		Monitoring Monitoring
		Rooms      Rooms
		Server     Server
	}
	Rooms struct {
		// maximum number of participants per room, 0 means unlimited
		MaxPeers int `fig:"maxPeers"`
	}

	// PeerConfig is the root config of the participant client.
	PeerConfig struct {
		Peer   Peer
		Webrtc Webrtc
	}
	Peer struct {
		Debug     bool
		Signaler  string `fig:"signaler" default:"ws://localhost:8000/ws"`
		Room      string
		Reconnect Reconnect
	}
	// Reconnect holds the recovery knobs of the negotiation engine.
	Reconnect struct {
		Grace       time.Duration `fig:"grace" default:"5s"`
		MaxAttempts int           `fig:"maxAttempts" default:"3"`
	}

	Monitoring struct {
		Port             int
		URLPrefix        string
		MetricEnabled    bool `fig:"metricEnabled"`
		ProfilingEnabled bool `fig:"profilingEnabled"`
	}

	Server struct {
		Address string `fig:"address" default:":8000"`
		Https   bool
		Tls     struct {
			Address   string
			Domain    string
			HttpsKey  string
			HttpsCert string
		}
	}
)

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

func (s *Server) GetAddr() string {
	if s.Https {
		return s.Tls.Address
	}
	return s.Address
}

func (s *Server) WithFlags() {
	flag.StringVar(&s.Address, "address", s.Address, "HTTP server address (host:port)")
	flag.StringVar(&s.Tls.Address, "httpsAddress", s.Tls.Address, "HTTPS server address (host:port)")
	flag.StringVar(&s.Tls.HttpsKey, "httpsKey", s.Tls.HttpsKey, "HTTPS key")
	flag.StringVar(&s.Tls.HttpsCert, "httpsCert", s.Tls.HttpsCert, "HTTPS chain")
}

// allows custom config path
var configPath string

func NewSignalerConfig() (conf SignalerConfig) {
	if err := LoadConfig(&conf, configPath); err != nil {
		panic(err)
	}
	return
}

func NewPeerConfig() (conf PeerConfig) {
	if err := LoadConfig(&conf, configPath); err != nil {
		panic(err)
	}
	return
}

func (c *SignalerConfig) ParseFlags() {
	c.Signaler.Server.WithFlags()
	flag.IntVar(&c.Signaler.Monitoring.Port, "monitoring.port", c.Signaler.Monitoring.Port, "Monitoring server port")
	flag.StringVar(&configPath, "conf", configPath, "Set custom configuration file path")
	flag.Parse()
}

func (c *PeerConfig) ParseFlags() {
	flag.StringVar(&c.Peer.Signaler, "signaler", c.Peer.Signaler, "Signaling server websocket URL")
	flag.StringVar(&c.Peer.Room, "room", c.Peer.Room, "Room id to join")
	flag.StringVar(&configPath, "conf", configPath, "Set custom configuration file path")
	flag.Parse()
}
