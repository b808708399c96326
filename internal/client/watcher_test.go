package client_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/omochice/chatroom/internal/client"
	"github.com/omochice/chatroom/internal/session"
	"github.com/omochice/chatroom/internal/testutil"
	"github.com/omochice/chatroom/pkg/protocol"
)

func TestWatcher_SplitsCoalescedBroadcast(t *testing.T) {
	h := newHarness(t, ackAll)
	h.loginAndJoin(t)

	delim := string(protocol.Delimiter)
	h.server.push("A" + delim + "B" + delim + "C")

	for _, want := range []string{"A", "B", "C"} {
		if got := testutil.RequireReceive(t, h.chats, wait); got != want {
			t.Errorf("OnChatMessage(%q), want %q", got, want)
		}
	}
	if got := h.client.Snapshot().LastSeen; got != "C" {
		t.Errorf("LastSeen = %q, want C", got)
	}
}

func TestWatcher_DropsRepeatedBroadcast(t *testing.T) {
	h := newHarness(t, ackAll)
	h.loginAndJoin(t)

	h.server.push("bob>hi")
	if got := testutil.RequireReceive(t, h.chats, wait); got != "bob>hi" {
		t.Fatalf("OnChatMessage(%q), want bob>hi", got)
	}

	h.server.push("bob>hi")
	testutil.RequireNoReceive(t, h.chats, 200*time.Millisecond, "repeated broadcast delivered twice")

	h.server.push("carol>yo")
	if got := testutil.RequireReceive(t, h.chats, wait); got != "carol>yo" {
		t.Errorf("OnChatMessage(%q), want carol>yo", got)
	}
}

func TestWatcher_IgnoresBroadcastOutsideRoom(t *testing.T) {
	h := newHarness(t, ackAll)
	if err := h.client.Login("alice", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	h.server.push("bob>hi")

	testutil.RequireNoReceive(t, h.chats, 300*time.Millisecond, "broadcast delivered outside a room")
	testutil.RequireNoReceive(t, h.lost, 10*time.Millisecond, "stray bytes reported as a lost connection")
	if got := h.client.Phase(); got != session.Authenticated {
		t.Errorf("Phase() = %v", got)
	}
	if err := h.client.Logout(); err != nil {
		t.Errorf("Logout() after stray bytes error = %v", err)
	}
}

func TestWatcher_DeliversBackToBackBroadcasts(t *testing.T) {
	h := newHarness(t, ackAll)
	h.loginAndJoin(t)

	h.server.push("bob>one")
	h.server.push("bob>two")

	for _, want := range []string{"bob>one", "bob>two"} {
		if got := testutil.RequireReceive(t, h.chats, wait); got != want {
			t.Errorf("OnChatMessage(%q), want %q", got, want)
		}
	}
}

func TestWatcher_DetectsServerClose(t *testing.T) {
	for _, inRoom := range []bool{false, true} {
		t.Run(fmt.Sprintf("in room %v", inRoom), func(t *testing.T) {
			h := newHarness(t, ackAll)
			if err := h.client.Login("alice", "secret"); err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if inRoom {
				if _, err := h.client.Join("lobby"); err != nil {
					t.Fatalf("Join() error = %v", err)
				}
			}

			h.server.close()

			reason := testutil.RequireReceive(t, h.lost, wait, "OnDisconnected not called")
			if reason == "" {
				t.Error("OnDisconnected called with empty reason")
			}
			if got := h.client.Phase(); got != session.Disconnected {
				t.Errorf("Phase() = %v, want disconnected", got)
			}
			if err := h.client.Logout(); !errors.Is(err, client.ErrDisconnected) {
				t.Errorf("Logout() error = %v, want ErrDisconnected", err)
			}
			testutil.RequireNoReceive(t, h.lost, 100*time.Millisecond, "OnDisconnected called twice")
		})
	}
}

func TestWatcher_RequestsStayAlignedUnderContention(t *testing.T) {
	h := newHarness(t, ackAll)
	if err := h.client.Login("alice", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	const n = 200
	for i := range n {
		var err error
		switch i % 3 {
		case 0:
			_, err = h.client.ListRooms()
		case 1:
			err = h.client.CreateRoom(fmt.Sprintf("room%03d", i))
		default:
			err = h.client.Register(fmt.Sprintf("user%03d", i), "secret")
		}
		if err != nil {
			t.Fatalf("operation %d error = %v", i, err)
		}
	}
	if got := h.client.Phase(); got != session.Authenticated {
		t.Errorf("Phase() = %v", got)
	}
}

func TestWatcher_StopsOnQuit(t *testing.T) {
	h := newHarness(t, ackAll)
	h.loginAndJoin(t)

	done := make(chan struct{})
	go func() {
		h.client.Quit()
		close(done)
	}()
	testutil.RequireClosed(t, done, wait, "Quit did not return")

	h.server.push("late>message")
	testutil.RequireNoReceive(t, h.chats, 100*time.Millisecond, "message delivered after Quit")
	testutil.RequireNoReceive(t, h.lost, 100*time.Millisecond, "Quit reported as lost connection")
}
