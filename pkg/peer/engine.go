// Package peer implements the client half of the negotiation core: a
// per-remote-peer handshake state machine with bounded recovery, and a
// participant client that multiplexes engines over one relay socket.
package peer

import (
	"sync"

	"github.com/huddlelab/huddle/pkg/config"
	"github.com/huddlelab/huddle/pkg/logger"
)

// State is the lifecycle state of one peer negotiation.
type State uint8

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateDegraded
	StateRecovering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateRecovering:
		return "recovering"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Role decides which side sends the offer.
// The side that joined second (and therefore received the other in its
// peers list) initiates, the side that was already present waits for an
// offer. This asymmetry prevents both sides from offering at once.
type Role uint8

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Outbox delivers outbound handshake messages for a remote peer.
type Outbox interface {
	SendOffer(target string, sdp []byte)
	SendAnswer(target string, sdp []byte)
	SendCandidate(target string, candidate []byte)
}

// Engine runs the negotiation state machine for exactly one remote
// peer. All transitions, inbound messages, transport health callbacks
// and timer expiries, are applied atomically under one lock. Recovery
// discards the whole session and starts a fresh one with the original
// role, candidates and health events of a discarded session are fenced
// off by a generation counter.
type Engine struct {
	remote   string
	role     Role
	factory  SessionFactory
	out      Outbox
	log      *logger.Logger
	onClosed func(remote string, gaveUp bool)

	mu        sync.Mutex
	state     State
	session   Session
	gen       uint64
	remoteSet bool
	pending   [][]byte
	rec       reconnector
}

func NewEngine(remote string, role Role, factory SessionFactory, out Outbox,
	conf config.Reconnect, log *logger.Logger, onClosed func(remote string, gaveUp bool)) *Engine {
	return &Engine{
		remote:   remote,
		role:     role,
		factory:  factory,
		out:      out,
		log:      log.Extend(log.With().Str("peer", remote).Str("role", role.String())),
		onClosed: onClosed,
		rec:      newReconnector(conf),
	}
}

func (e *Engine) Remote() string { return e.remote }
func (e *Engine) Role() Role     { return e.role }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start kicks off the handshake. Initiators create and send the offer,
// responders keep waiting for one.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state != StateNew || e.role != RoleInitiator {
		e.mu.Unlock()
		return nil
	}
	offer, err := e.offerLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.out.SendOffer(e.remote, offer)
	return nil
}

// HandleOffer applies a remote offer and replies with an answer.
func (e *Engine) HandleOffer(offer []byte) error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	if e.role == RoleInitiator {
		// the tie-break says the other side must not offer; ignore
		e.mu.Unlock()
		e.log.Warn().Msg("unexpected offer from the waiting side")
		return nil
	}
	if e.session == nil {
		if _, err := e.newSessionLocked(); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	answer, err := e.session.HandleOffer(offer)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = StateNegotiating
	e.remoteSet = true
	e.replayLocked()
	e.mu.Unlock()

	e.out.SendAnswer(e.remote, answer)
	return nil
}

// HandleAnswer applies the remote answer to the in-flight offer.
func (e *Engine) HandleAnswer(answer []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed || e.session == nil {
		return nil
	}
	if err := e.session.HandleAnswer(answer); err != nil {
		return err
	}
	e.remoteSet = true
	e.replayLocked()
	return nil
}

// HandleCandidate applies a remote network-path candidate, buffering it
// until the remote description is set. Buffered candidates are replayed
// in arrival order.
func (e *Engine) HandleCandidate(candidate []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	if !e.remoteSet {
		e.pending = append(e.pending, candidate)
		return
	}
	if err := e.session.AddCandidate(candidate); err != nil {
		// duplicates after a replay are expected, not fatal
		e.log.Debug().Err(err).Msg("candidate not applied")
	}
}

// PeerLeft closes the engine after the remote peer left the room.
func (e *Engine) PeerLeft() { e.shutdown() }

// Close tears the engine down from any state, also mid-negotiation.
func (e *Engine) Close() { e.shutdown() }

func (e *Engine) shutdown() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	notify := e.closeLocked(false)
	e.mu.Unlock()
	notify()
}

// health is the session callback entry point; events of a discarded
// session generation are dropped.
func (e *Engine) health(gen uint64, h Health) {
	e.mu.Lock()
	if gen != e.gen || e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.log.Debug().Str("health", h.String()).Str("state", e.state.String()).Msg("health")
	var after func()
	switch h {
	case HealthUp:
		e.state = StateConnected
		e.rec.reset()
	case HealthLost:
		if e.state == StateConnected {
			e.state = StateDegraded
			g := e.gen
			e.rec.arm(func() { e.graceExpired(g) })
		}
	case HealthFailed:
		after = e.recoverLocked()
	}
	e.mu.Unlock()
	if after != nil {
		after()
	}
}

// graceExpired fires when the degraded path did not self-recover in
// time. A stale timer, one from a session already recovered, closed or
// replaced, is a no-op.
func (e *Engine) graceExpired(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != StateDegraded {
		e.mu.Unlock()
		return
	}
	after := e.recoverLocked()
	e.mu.Unlock()
	if after != nil {
		after()
	}
}

// recoverLocked starts one recovery attempt: the current session is
// discarded and the handshake restarts with the original role. After
// the attempt cap the engine closes for good.
func (e *Engine) recoverLocked() func() {
	e.rec.cancel()
	if !e.rec.next() {
		e.log.Warn().Msg("recovery attempts exhausted")
		return e.closeLocked(true)
	}
	e.log.Info().Int("attempt", e.rec.attempts).Msg("recovering")
	e.state = StateRecovering
	e.discardSessionLocked()

	if e.role != RoleInitiator {
		// the other side re-offers; wait for it with a clean slate
		return nil
	}
	offer, err := e.offerLocked()
	if err != nil {
		e.log.Error().Err(err).Msg("recovery restart")
		return e.closeLocked(true)
	}
	return func() { e.out.SendOffer(e.remote, offer) }
}

// offerLocked creates a fresh session and produces its offer.
func (e *Engine) offerLocked() ([]byte, error) {
	s, err := e.newSessionLocked()
	if err != nil {
		return nil, err
	}
	offer, err := s.CreateOffer()
	if err != nil {
		return nil, err
	}
	e.state = StateNegotiating
	return offer, nil
}

func (e *Engine) newSessionLocked() (Session, error) {
	e.gen++
	gen := e.gen
	s, err := e.factory(SessionEvents{
		OnCandidate: func(c []byte) { e.relayCandidate(gen, c) },
		OnHealth:    func(h Health) { e.health(gen, h) },
	})
	if err != nil {
		return nil, err
	}
	e.session = s
	e.remoteSet = false
	e.pending = nil
	return s, nil
}

func (e *Engine) relayCandidate(gen uint64, candidate []byte) {
	e.mu.Lock()
	stale := gen != e.gen || e.state == StateClosed
	e.mu.Unlock()
	if stale {
		return
	}
	e.out.SendCandidate(e.remote, candidate)
}

func (e *Engine) discardSessionLocked() {
	if e.session != nil {
		_ = e.session.Close()
		e.session = nil
	}
	e.remoteSet = false
	e.pending = nil
	e.gen++
}

func (e *Engine) closeLocked(gaveUp bool) func() {
	e.rec.cancel()
	e.discardSessionLocked()
	e.state = StateClosed
	remote, fn := e.remote, e.onClosed
	return func() {
		if fn != nil {
			fn(remote, gaveUp)
		}
	}
}

// replayLocked applies the buffered candidates in arrival order once
// the remote description is in place.
func (e *Engine) replayLocked() {
	for _, c := range e.pending {
		if err := e.session.AddCandidate(c); err != nil {
			e.log.Debug().Err(err).Msg("replayed candidate not applied")
		}
	}
	e.pending = nil
}
