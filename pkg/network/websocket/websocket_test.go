package websocket

import (
	"testing"
	"time"
)

func TestWriteUnblocksWhenWriterGone(t *testing.T) {
	ws := &WS{send: make(chan []byte, 1), wstop: make(chan struct{})}
	ws.send <- []byte("x") // the queue is full and nothing drains it

	result := make(chan bool, 1)
	go func() { result <- ws.Write([]byte("y")) }()

	select {
	case <-result:
		t.Fatal("write returned with a full queue and a live writer")
	case <-time.After(50 * time.Millisecond):
	}

	close(ws.wstop) // the writer pump exits
	select {
	case ok := <-result:
		if ok {
			t.Error("write reported success after the writer exited")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write wedged after the writer exited")
	}
}

func TestWriteClosed(t *testing.T) {
	ws := &WS{send: make(chan []byte, 1), wstop: make(chan struct{}), closed: true}
	if ws.Write([]byte("x")) {
		t.Error("write accepted on a closed connection")
	}
	if ws.TryWrite([]byte("x")) {
		t.Error("try-write accepted on a closed connection")
	}
}
