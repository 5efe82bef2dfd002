package peer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/huddlelab/huddle/pkg/config"
	"github.com/huddlelab/huddle/pkg/logger"
)

type fakeSession struct {
	mu       sync.Mutex
	ev       SessionEvents
	offered  bool
	answered bool
	applied  []string
	closed   bool
	// rejectDup makes AddCandidate behave like a real transport that
	// refuses a candidate it has already seen.
	rejectDup bool
}

func (s *fakeSession) CreateOffer() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offered = true
	return []byte(`{"sdp":"offer"}`), nil
}

func (s *fakeSession) HandleOffer(offer []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answered = true
	return []byte(`{"sdp":"answer"}`), nil
}

func (s *fakeSession) HandleAnswer(answer []byte) error { return nil }

func (s *fakeSession) AddCandidate(candidate []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := string(candidate)
	if s.rejectDup {
		for _, seen := range s.applied {
			if seen == c {
				return errors.New("duplicate candidate")
			}
		}
	}
	s.applied = append(s.applied, c)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) offeredNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offered
}

func (s *fakeSession) answeredNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered
}

func (s *fakeSession) appliedNow() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.applied...)
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFactory struct {
	mu        sync.Mutex
	sessions  []*fakeSession
	rejectDup bool
}

func (f *fakeFactory) new(ev SessionEvents) (Session, error) {
	s := &fakeSession{ev: ev, rejectDup: f.rejectDup}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

type recordOutbox struct {
	mu         sync.Mutex
	offers     int
	answers    int
	candidates []string
}

func (o *recordOutbox) SendOffer(target string, sdp []byte) {
	o.mu.Lock()
	o.offers++
	o.mu.Unlock()
}

func (o *recordOutbox) SendAnswer(target string, sdp []byte) {
	o.mu.Lock()
	o.answers++
	o.mu.Unlock()
}

func (o *recordOutbox) SendCandidate(target string, candidate []byte) {
	o.mu.Lock()
	o.candidates = append(o.candidates, string(candidate))
	o.mu.Unlock()
}

func (o *recordOutbox) sentOffers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offers
}

func (o *recordOutbox) sentAnswers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.answers
}

func (o *recordOutbox) sentCandidates() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.candidates...)
}

type closeRecord struct {
	mu     sync.Mutex
	closed bool
	gaveUp bool
}

func (c *closeRecord) on(remote string, gaveUp bool) {
	c.mu.Lock()
	c.closed, c.gaveUp = true, gaveUp
	c.mu.Unlock()
}

func (c *closeRecord) state() (closed, gaveUp bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.gaveUp
}

func newTestEngine(role Role, conf config.Reconnect) (*Engine, *fakeFactory, *recordOutbox, *closeRecord) {
	f := &fakeFactory{}
	out := &recordOutbox{}
	cl := &closeRecord{}
	e := NewEngine("remote-1", role, f.new, out, conf, logger.Default(), cl.on)
	return e, f, out, cl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitiatorOffers(t *testing.T) {
	e, f, out, _ := newTestEngine(RoleInitiator, config.Reconnect{})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if out.sentOffers() != 1 {
		t.Errorf("expected 1 offer, sent %d", out.sentOffers())
	}
	if got := e.State(); got != StateNegotiating {
		t.Errorf("state %v after start", got)
	}
	if f.count() != 1 || !f.last().offered {
		t.Error("no session created for the offer")
	}
	// Start is one-shot
	if err := e.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if out.sentOffers() != 1 {
		t.Errorf("second start sent another offer")
	}
}

func TestResponderWaitsForOffer(t *testing.T) {
	e, f, out, _ := newTestEngine(RoleResponder, config.Reconnect{})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if out.sentOffers() != 0 || f.count() != 0 {
		t.Error("responder offered")
	}
	if got := e.State(); got != StateNew {
		t.Errorf("state %v before any offer", got)
	}
}

func TestResponderAnswersOffer(t *testing.T) {
	e, f, out, _ := newTestEngine(RoleResponder, config.Reconnect{})
	if err := e.HandleOffer([]byte(`{"sdp":"offer"}`)); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if out.sentAnswers() != 1 {
		t.Errorf("expected 1 answer, sent %d", out.sentAnswers())
	}
	if got := e.State(); got != StateNegotiating {
		t.Errorf("state %v after answering", got)
	}
	if !f.last().answered {
		t.Error("offer never reached the session")
	}
}

func TestInitiatorIgnoresCrossingOffer(t *testing.T) {
	e, f, out, _ := newTestEngine(RoleInitiator, config.Reconnect{})
	_ = e.Start()
	if err := e.HandleOffer([]byte(`{"sdp":"offer"}`)); err != nil {
		t.Fatalf("crossing offer: %v", err)
	}
	if out.sentAnswers() != 0 {
		t.Error("initiator answered a crossing offer")
	}
	if f.count() != 1 {
		t.Error("crossing offer replaced the session")
	}
	if got := e.State(); got != StateNegotiating {
		t.Errorf("state %v after crossing offer", got)
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	e, f, _, _ := newTestEngine(RoleInitiator, config.Reconnect{})
	_ = e.Start()

	for i := 0; i < 3; i++ {
		e.HandleCandidate([]byte(fmt.Sprintf("c%d", i)))
	}
	if got := f.last().appliedNow(); len(got) != 0 {
		t.Fatalf("candidates applied before the remote description: %v", got)
	}

	if err := e.HandleAnswer([]byte(`{"sdp":"answer"}`)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	want := []string{"c0", "c1", "c2"}
	if got := f.last().appliedNow(); !reflect.DeepEqual(got, want) {
		t.Errorf("replay order: got %v, want %v", got, want)
	}

	// past this point candidates go straight through
	e.HandleCandidate([]byte("c3"))
	if got := f.last().appliedNow(); !reflect.DeepEqual(got, append(want, "c3")) {
		t.Errorf("late candidate: got %v", got)
	}
}

func TestDuplicateCandidateTolerated(t *testing.T) {
	e, f, _, cl := newTestEngine(RoleResponder, config.Reconnect{})
	f.rejectDup = true
	_ = e.HandleOffer([]byte(`{"sdp":"offer"}`))

	e.HandleCandidate([]byte("c0"))
	e.HandleCandidate([]byte("c0"))
	if got := f.last().appliedNow(); !reflect.DeepEqual(got, []string{"c0"}) {
		t.Errorf("expected one applied candidate, got %v", got)
	}
	if closed, _ := cl.state(); closed {
		t.Error("duplicate candidate closed the engine")
	}
	if got := e.State(); got != StateNegotiating {
		t.Errorf("state %v after duplicate", got)
	}
}

func TestLocalCandidatesRelayed(t *testing.T) {
	e, f, out, _ := newTestEngine(RoleInitiator, config.Reconnect{})
	_ = e.Start()

	f.last().ev.OnCandidate([]byte("local-c0"))
	if got := out.sentCandidates(); !reflect.DeepEqual(got, []string{"local-c0"}) {
		t.Errorf("candidate not relayed: %v", got)
	}
}

func TestPeerLeftClosesEverything(t *testing.T) {
	e, f, _, cl := newTestEngine(RoleResponder, config.Reconnect{})
	_ = e.HandleOffer([]byte(`{"sdp":"offer"}`))
	s := f.last()

	e.PeerLeft()
	if got := e.State(); got != StateClosed {
		t.Errorf("state %v after peer left", got)
	}
	if !s.isClosed() {
		t.Error("session survived the peer leaving")
	}
	closed, gaveUp := cl.state()
	if !closed || gaveUp {
		t.Errorf("close notification: closed=%v gaveUp=%v", closed, gaveUp)
	}

	// late traffic after the close must be inert
	e.HandleCandidate([]byte("c-late"))
	if err := e.HandleOffer([]byte(`{"sdp":"again"}`)); err != nil {
		t.Errorf("offer after close: %v", err)
	}
	s.ev.OnCandidate([]byte("stale"))
	if f.count() != 1 {
		t.Error("closed engine created a session")
	}
}
