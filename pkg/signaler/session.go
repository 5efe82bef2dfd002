package signaler

import (
	"github.com/huddlelab/huddle/pkg/api"
	"github.com/huddlelab/huddle/pkg/com"
	"github.com/huddlelab/huddle/pkg/logger"
	"github.com/huddlelab/huddle/pkg/network/websocket"
)

// Session is one participant's live transport connection.
// Its id is assigned by the relay on upgrade and stays stable for the
// whole websocket lifetime, clients never pick their own id.
type Session struct {
	id   com.Uid
	room string // mutated only by the reader goroutine of this session
	conn *websocket.WS
	log  *logger.Logger
}

func newSession(conn *websocket.WS, log *logger.Logger) *Session {
	id := com.NewUid()
	return &Session{
		id:   id,
		conn: conn,
		log:  log.Extend(log.With().Str("cid", id.Short())),
	}
}

func (s *Session) Id() string { return s.id.String() }

// Send queues a message for this session without blocking.
// A stalled or closed session drops the message, the relay never
// buffers on behalf of a receiver.
func (s *Session) Send(m *api.Message) bool {
	data, err := api.Encode(m)
	if err != nil {
		s.log.Error().Err(err).Msg("encode")
		return false
	}
	if !s.conn.TryWrite(data) {
		metricDropped.Inc()
		s.log.Debug().Str("kind", string(m.Kind)).Msg("message dropped")
		return false
	}
	return true
}
