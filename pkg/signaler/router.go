package signaler

import (
	"net/http"

	"github.com/huddlelab/huddle/pkg/api"
	"github.com/huddlelab/huddle/pkg/com"
	"github.com/huddlelab/huddle/pkg/logger"
	"github.com/huddlelab/huddle/pkg/network/websocket"
)

// Router is the stateless dispatcher between participant sessions.
// It validates inbound messages, resolves targets through the Registry,
// and forwards without any buffering: a message for a gone target is
// dropped, recovery is the sender's negotiation engine's job.
type Router struct {
	registry *Registry
	sessions com.Map[string, *Session]
	log      *logger.Logger
}

func NewRouter(registry *Registry, log *logger.Logger) *Router {
	return &Router{
		registry: registry,
		sessions: com.NewMap[string, *Session](),
		log:      log,
	}
}

// HandleConnection upgrades the request and serves the session until
// the socket dies. Blocking.
func (r *Router) HandleConnection(w http.ResponseWriter, rq *http.Request) {
	conn, err := websocket.NewServer(w, rq, r.log)
	if err != nil {
		r.log.Error().Err(err).Msg("websocket upgrade")
		return
	}
	s := newSession(conn, r.log)
	r.sessions.Put(s.Id(), s)
	metricSessions.Inc()
	s.log.Info().Msg("Connect")

	conn.OnMessage = func(message []byte, err error) {
		if err != nil {
			return
		}
		r.route(s, message)
	}
	<-conn.Listen()

	r.disconnect(s)
}

func (r *Router) route(s *Session, raw []byte) {
	m, err := api.Decode(raw)
	if err == nil {
		err = m.Validate()
	}
	if err != nil {
		metricMalformed.Inc()
		s.log.Debug().Err(err).Msg("rejected")
		s.Send(api.NewError(err))
		return
	}

	switch m.Kind {
	case api.Join:
		r.join(s, m.Room)
	case api.Ping:
		s.Send(api.NewPong())
	case api.Offer, api.Answer, api.IceCandidate:
		r.forward(s, m)
	}
}

// join registers the session in the room, answers with the current
// peers (excluding the newcomer), and announces the arrival to the
// rest of the room. Joining while in another room leaves it, and the
// old room is told so.
func (r *Router) join(s *Session, roomID string) {
	prev := r.registry.RoomOf(s.Id())
	peers, err := r.registry.Join(roomID, s.Id())
	if prev != "" && prev != roomID {
		r.broadcast(r.registry.MembersOf(prev), api.NewPeerLeft(s.Id()))
	}
	if err != nil {
		s.room = ""
		s.log.Info().Err(err).Str("room", roomID).Msg("join refused")
		s.Send(api.NewError(err))
		return
	}
	s.room = roomID
	metricJoins.Inc()
	metricRooms.Set(float64(r.registry.RoomCount()))
	s.log.Info().Str("room", roomID).Int("peers", len(peers)).Msg("Join")

	s.Send(api.NewPeersList(peers))
	r.broadcast(peers, api.NewPeerJoined(s.Id()))
}

// forward relays a directed message to its target with the sender id
// stamped over whatever the client put into the from field.
func (r *Router) forward(s *Session, m *api.Message) {
	if !r.registry.IsMember(s.room, m.Target) {
		// a peer that left while the message was in flight, not an error
		metricDropped.Inc()
		s.log.Debug().Str("kind", string(m.Kind)).Str("target", m.Target).Msg("target gone")
		return
	}
	target, err := r.sessions.Find(m.Target)
	if err != nil {
		metricDropped.Inc()
		return
	}
	m.From = s.Id()
	if target.Send(m) {
		metricForwarded.WithLabelValues(string(m.Kind)).Inc()
	}
}

// disconnect releases room membership, always, also on abrupt socket
// termination, so stale participants are never reported as present.
func (r *Router) disconnect(s *Session) {
	r.sessions.RemoveByKey(s.Id())
	metricSessions.Dec()
	if s.room != "" {
		rest := r.registry.Leave(s.room, s.Id())
		metricLeaves.Inc()
		metricRooms.Set(float64(r.registry.RoomCount()))
		r.broadcast(rest, api.NewPeerLeft(s.Id()))
	}
	s.log.Info().Msg("Disconnect")
}

func (r *Router) broadcast(ids []string, m *api.Message) {
	for _, id := range ids {
		if peer, err := r.sessions.Find(id); err == nil {
			peer.Send(m)
		}
	}
}
