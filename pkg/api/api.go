// Package api defines the signaling wire protocol shared by the relay
// server and the participant clients.
//
// Every message is a JSON object discriminated by its kind field:
//
//	kind   - (required) one of the predefined message kinds;
//	from   - the sender's connection id, stamped by the relay on forward
//	         (a client-supplied value is always overwritten);
//	target - the addressee's connection id, required for directed kinds;
//	room   - the room id, required for join;
//	peers  - the list of already-present connection ids, peers-list only;
//	body   - kind-specific payload: a session description for offer and
//	         answer, a network-path candidate for ice-candidate.
//
// The body field stays raw on decode so that it can be passed through
// the relay verbatim and unwrapped only by the final recipient.
//
// Example:
//
//	{"kind":"offer","from":"cn4f2a…","target":"cn4f2b…","body":{"type":"offer","sdp":"v=0…"}}
package api

import (
	"errors"

	"github.com/goccy/go-json"
)

// Kind identifies a signaling message kind.
type Kind string

const (
	Join         Kind = "join"
	PeersList    Kind = "peers-list"
	PeerJoined   Kind = "peer-joined"
	PeerLeft     Kind = "peer-left"
	Offer        Kind = "offer"
	Answer       Kind = "answer"
	IceCandidate Kind = "ice-candidate"
	Ping         Kind = "ping"
	Pong         Kind = "pong"
	Error        Kind = "error"
)

// Message is the wire structure for every signaling exchange.
type Message struct {
	Kind   Kind            `json:"kind"`
	From   string          `json:"from,omitempty"`
	Target string          `json:"target,omitempty"`
	Room   string          `json:"room,omitempty"`
	Peers  []string        `json:"peers,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Error  string          `json:"error,omitempty"`
}

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrNoRoom       = errors.New("missing room id")
	ErrNoTarget     = errors.New("missing target id")
	ErrRoomFull     = errors.New("room is full")
	ErrNoSuchTarget = errors.New("no such target")
)

// Directed reports whether the message must name a target connection.
func (k Kind) Directed() bool { return k == Offer || k == Answer || k == IceCandidate }

// Validate checks the per-kind required fields at the relay boundary.
func (m *Message) Validate() error {
	switch m.Kind {
	case Join:
		if m.Room == "" {
			return ErrNoRoom
		}
	case Offer, Answer, IceCandidate:
		if m.Target == "" {
			return ErrNoTarget
		}
	case Ping, Pong:
	case PeersList, PeerJoined, PeerLeft, Error:
		// server-originated kinds are not accepted from clients
		return ErrMalformed
	default:
		return ErrUnknownKind
	}
	return nil
}

func Decode(data []byte) (*Message, error) {
	m := Message{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func Encode(m *Message) ([]byte, error) { return json.Marshal(m) }

func NewPeersList(peers []string) *Message {
	if peers == nil {
		peers = []string{}
	}
	return &Message{Kind: PeersList, Peers: peers}
}

func NewPeerJoined(id string) *Message { return &Message{Kind: PeerJoined, From: id} }
func NewPeerLeft(id string) *Message   { return &Message{Kind: PeerLeft, From: id} }
func NewPong() *Message                { return &Message{Kind: Pong} }
func NewError(err error) *Message      { return &Message{Kind: Error, Error: err.Error()} }
