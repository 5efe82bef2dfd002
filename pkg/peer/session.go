package peer

// Health is the condensed state of the underlying transport path as
// reported by the network capability backing a session.
type Health uint8

const (
	// HealthUp means the path is usable.
	HealthUp Health = iota
	// HealthLost means the path is lost but may still self-recover,
	// a soft signal that only arms the recovery grace timer.
	HealthLost
	// HealthFailed means the path is gone for good and recovery
	// should start immediately.
	HealthFailed
)

func (h Health) String() string {
	switch h {
	case HealthUp:
		return "up"
	case HealthLost:
		return "lost"
	case HealthFailed:
		return "failed"
	}
	return "unknown"
}

// SessionEvents carries the callbacks a session fires while negotiating.
type SessionEvents struct {
	// OnCandidate is fired for every locally gathered network-path
	// candidate that should be relayed to the remote peer.
	OnCandidate func(candidate []byte)
	// OnHealth is fired on every transport path health change.
	OnHealth func(h Health)
}

// Session is one attempt at a direct connection with a remote peer.
// The engine drives it through the offer/answer handshake and discards
// it wholesale on recovery, sessions are never reused across attempts.
type Session interface {
	// CreateOffer produces the local session description, initiator side.
	CreateOffer() ([]byte, error)
	// HandleOffer applies the remote offer and produces the answer,
	// responder side.
	HandleOffer(offer []byte) (answer []byte, err error)
	// HandleAnswer applies the remote answer, initiator side.
	HandleAnswer(answer []byte) error
	// AddCandidate applies a remote network-path candidate. Callers must
	// apply it only after the remote description is set.
	AddCandidate(candidate []byte) error
	Close() error
}

// SessionFactory creates a fresh Session wired to the given events.
type SessionFactory func(ev SessionEvents) (Session, error)
