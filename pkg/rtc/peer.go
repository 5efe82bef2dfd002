package rtc

import (
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v3"

	"github.com/huddlelab/huddle/pkg/logger"
	"github.com/huddlelab/huddle/pkg/peer"
)

// Peer is the production session implementation on top of a pion
// PeerConnection with receiving audio/video transceivers and a control
// data channel.
type Peer struct {
	conn *webrtc.PeerConnection
	log  *logger.Logger
}

// NewSession creates a PeerConnection and wires its candidate and
// connection-state callbacks into the engine events.
func NewSession(api *ApiFactory, log *logger.Logger, ev peer.SessionEvents) (peer.Session, error) {
	conn, err := api.NewPeer()
	if err != nil {
		return nil, err
	}
	p := &Peer{conn: conn, log: log}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err = conn.AddTransceiverFromKind(kind,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if err = p.addDataChannel("control"); err != nil {
		_ = conn.Close()
		return nil, err
	}

	conn.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice == nil {
			// ICE gathering finish condition
			p.log.Debug().Msg("ICE gathering was complete probably")
			return
		}
		candidate := ice.ToJSON()
		p.log.Debug().Str("candidate", candidate.Candidate).Msg("ICE")
		if data, err := json.Marshal(candidate); err == nil && ev.OnCandidate != nil {
			ev.OnCandidate(data)
		}
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug().Str(".state", state.String()).Msg("Peer")
		if ev.OnHealth == nil {
			return
		}
		switch state {
		case webrtc.PeerConnectionStateConnected:
			ev.OnHealth(peer.HealthUp)
		case webrtc.PeerConnectionStateDisconnected:
			ev.OnHealth(peer.HealthLost)
		case webrtc.PeerConnectionStateFailed:
			ev.OnHealth(peer.HealthFailed)
		}
	})
	return p, nil
}

func (p *Peer) CreateOffer() ([]byte, error) {
	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err = p.conn.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	p.log.Debug().Msg("Created Offer")
	return json.Marshal(offer)
}

func (p *Peer) HandleOffer(offer []byte) ([]byte, error) {
	var sdp webrtc.SessionDescription
	if err := json.Unmarshal(offer, &sdp); err != nil {
		return nil, err
	}
	if err := p.conn.SetRemoteDescription(sdp); err != nil {
		return nil, err
	}
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err = p.conn.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	p.log.Debug().Msg("Created Answer")
	return json.Marshal(answer)
}

func (p *Peer) HandleAnswer(answer []byte) error {
	var sdp webrtc.SessionDescription
	if err := json.Unmarshal(answer, &sdp); err != nil {
		return err
	}
	if err := p.conn.SetRemoteDescription(sdp); err != nil {
		return err
	}
	p.log.Debug().Msg("Set Remote Description")
	return nil
}

func (p *Peer) AddCandidate(candidate []byte) error {
	var ice webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &ice); err != nil {
		return err
	}
	if err := p.conn.AddICECandidate(ice); err != nil {
		return err
	}
	p.log.Debug().Str("candidate", ice.Candidate).Msg("Ice")
	return nil
}

func (p *Peer) Close() error {
	if p.conn.ConnectionState() < webrtc.PeerConnectionStateDisconnected {
		// ignore this due to DTLS fatal: conn is closed
		return p.conn.Close()
	}
	return nil
}

func (p *Peer) addDataChannel(label string) error {
	ch, err := p.conn.CreateDataChannel(label, nil)
	if err != nil {
		return err
	}
	ch.OnOpen(func() {
		p.log.Debug().Str("label", ch.Label()).Msg("Data channel opened")
	})
	ch.OnClose(func() { p.log.Debug().Msg("Data channel has been closed") })
	return nil
}
