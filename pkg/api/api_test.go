package api

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		m    Message
		err  error
	}{
		{"join", Message{Kind: Join, Room: "r1"}, nil},
		{"join without room", Message{Kind: Join}, ErrNoRoom},
		{"offer", Message{Kind: Offer, Target: "b"}, nil},
		{"offer without target", Message{Kind: Offer}, ErrNoTarget},
		{"answer without target", Message{Kind: Answer}, ErrNoTarget},
		{"candidate without target", Message{Kind: IceCandidate}, ErrNoTarget},
		{"ping", Message{Kind: Ping}, nil},
		{"server kind from client", Message{Kind: PeersList}, ErrMalformed},
		{"unknown kind", Message{Kind: "whatever"}, ErrUnknownKind},
	}
	for _, test := range tests {
		if err := test.m.Validate(); err != test.err {
			t.Errorf("%s: expected %v, got %v", test.name, test.err, err)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("garbage decoded without error")
	}
}
