package peer

import (
	"net/url"
	"sync"

	"github.com/huddlelab/huddle/pkg/api"
	"github.com/huddlelab/huddle/pkg/com"
	"github.com/huddlelab/huddle/pkg/config"
	"github.com/huddlelab/huddle/pkg/logger"
	"github.com/huddlelab/huddle/pkg/network/websocket"
)

// Client is one participant: it keeps the relay socket and exactly one
// Engine per remote peer currently being negotiated. Negotiation with
// different peers proceeds independently, engines share nothing but
// the socket.
type Client struct {
	conf    config.PeerConfig
	log     *logger.Logger
	factory SessionFactory

	conn    *websocket.WS
	engines com.Map[string, *Engine]
	leave   sync.Once
	Done    chan struct{}

	// OnGiveUp is fired after recovery for a peer is exhausted;
	// the only sensible user action at that point is to rejoin.
	OnGiveUp func(remote string)
}

func NewClient(conf config.PeerConfig, factory SessionFactory, log *logger.Logger) *Client {
	return &Client{
		conf:    conf,
		log:     log,
		factory: factory,
		engines: com.NewMap[string, *Engine](),
		Done:    make(chan struct{}),
	}
}

// Connect dials the relay and joins the configured room. The returned
// Done channel closes when the relay connection is gone and every
// engine has been torn down.
func (c *Client) Connect() error {
	address, err := url.Parse(c.conf.Peer.Signaler)
	if err != nil {
		return err
	}
	conn, err := websocket.NewClient(*address, c.log)
	if err != nil {
		return err
	}
	c.conn = conn
	conn.OnMessage = func(message []byte, err error) {
		if err != nil {
			return
		}
		c.handle(message)
	}
	done := conn.Listen()
	go func() {
		<-done
		c.teardown()
		close(c.Done)
	}()

	return c.send(&api.Message{Kind: api.Join, Room: c.conf.Peer.Room})
}

// Leave synchronously closes every peer session and the relay socket.
// Safe to call from any state, including mid-negotiation.
func (c *Client) Leave() {
	c.leave.Do(func() {
		c.teardown()
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) teardown() {
	c.engines.Drain(func(e *Engine) { e.Close() })
}

// handle dispatches one inbound relay message. It runs on the single
// socket reader goroutine, so engine map mutations are serialized.
func (c *Client) handle(raw []byte) {
	m, err := api.Decode(raw)
	if err != nil {
		c.log.Error().Err(err).Msg("bad message from relay")
		return
	}
	switch m.Kind {
	case api.PeersList:
		// joined second: initiate towards everyone already present
		c.log.Info().Int("peers", len(m.Peers)).Msg("Joined")
		for _, remote := range m.Peers {
			e := c.engine(remote, RoleInitiator)
			if err := e.Start(); err != nil {
				c.log.Error().Err(err).Str("peer", remote).Msg("start")
			}
		}
	case api.PeerJoined:
		// already present: the newcomer initiates, wait for its offer
		c.log.Info().Str("peer", m.From).Msg("Peer joined")
		c.engine(m.From, RoleResponder)
	case api.PeerLeft:
		c.log.Info().Str("peer", m.From).Msg("Peer left")
		if e, ok := c.engines.Pop(m.From); ok {
			e.PeerLeft()
		}
	case api.Offer:
		e := c.engine(m.From, RoleResponder)
		if err := e.HandleOffer(m.Body); err != nil {
			c.log.Error().Err(err).Str("peer", m.From).Msg("offer")
		}
	case api.Answer:
		if e, err := c.engines.Find(m.From); err == nil {
			if err := e.HandleAnswer(m.Body); err != nil {
				c.log.Error().Err(err).Str("peer", m.From).Msg("answer")
			}
		}
	case api.IceCandidate:
		if e, err := c.engines.Find(m.From); err == nil {
			e.HandleCandidate(m.Body)
		}
	case api.Error:
		c.log.Warn().Str("err", m.Error).Msg("relay error")
	case api.Pong:
	}
}

// engine returns the engine for the remote peer, creating it with the
// given role on first sight.
func (c *Client) engine(remote string, role Role) *Engine {
	if e, err := c.engines.Find(remote); err == nil {
		return e
	}
	e := NewEngine(remote, role, c.factory, c, c.conf.Peer.Reconnect, c.log, c.engineClosed)
	c.engines.Put(remote, e)
	return e
}

func (c *Client) engineClosed(remote string, gaveUp bool) {
	c.engines.RemoveByKey(remote)
	if gaveUp {
		c.log.Error().Str("peer", remote).Msg("connection lost; rejoin required")
		if c.OnGiveUp != nil {
			c.OnGiveUp(remote)
		}
	}
}

// Outbox implementation, engines send through the relay socket.

func (c *Client) SendOffer(target string, sdp []byte) {
	_ = c.send(&api.Message{Kind: api.Offer, Target: target, Body: sdp})
}

func (c *Client) SendAnswer(target string, sdp []byte) {
	_ = c.send(&api.Message{Kind: api.Answer, Target: target, Body: sdp})
}

func (c *Client) SendCandidate(target string, candidate []byte) {
	_ = c.send(&api.Message{Kind: api.IceCandidate, Target: target, Body: candidate})
}

func (c *Client) send(m *api.Message) error {
	data, err := api.Encode(m)
	if err != nil {
		return err
	}
	c.conn.Write(data)
	return nil
}
