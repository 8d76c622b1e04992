package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"schoolbus/internal/models"
)

type tokenFunc func() (string, error)

func (f tokenFunc) Token() (string, error) { return f() }

// echoServer replies to every envelope with the same envelope and records the
// token query parameter.
func echoServer(t *testing.T, tokens chan<- string) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokens != nil {
			tokens <- r.URL.Query().Get("token")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConn_EmitAndDispatch(t *testing.T) {
	tokens := make(chan string, 1)
	d := &WSDialer{
		URL:    echoServer(t, tokens),
		Tokens: tokenFunc(func() (string, error) { return "abc", nil }),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sock, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer sock.Close()

	if got := <-tokens; got != "abc" {
		t.Errorf("token = %q", got)
	}

	got := make(chan models.JoinChat, 1)
	order := make(chan string, 3)
	sock.On(models.EventJoinChat, func(data json.RawMessage) {
		var jc models.JoinChat
		if err := json.Unmarshal(data, &jc); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- jc
	})
	sock.On(models.EventTypingStart, func(data json.RawMessage) {
		order <- models.DecodeUserID(data)
	})
	sock.Listen()

	if err := sock.Emit(models.EventJoinChat, models.JoinChat{BusID: "b1", TripID: "t1"}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		if err := sock.Emit(models.EventTypingStart, id); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}

	select {
	case jc := <-got:
		if jc.BusID != "b1" || jc.TripID != "t1" {
			t.Errorf("join = %+v", jc)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for echo")
	}
	for _, want := range []string{"u1", "u2", "u3"} {
		select {
		case id := <-order:
			if id != want {
				t.Errorf("dispatch order: got %q, want %q", id, want)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for typing echo")
		}
	}
}

func TestConn_EmitAfterClose(t *testing.T) {
	d := &WSDialer{URL: echoServer(t, nil)}
	sock, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	sock.Listen()
	if err := sock.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sock.Emit(models.EventTypingStop, "u1"); err != ErrClosed {
		t.Errorf("Emit() after Close = %v, want ErrClosed", err)
	}
	select {
	case <-sock.Done():
	default:
		t.Error("Done() not closed")
	}
	// second Close is a no-op
	sock.Close()
}

func TestWSDialer_Unreachable(t *testing.T) {
	d := &WSDialer{URL: "ws://127.0.0.1:1/ws"}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.Dial(ctx); err == nil {
		t.Fatal("expected dial error")
	}
}
