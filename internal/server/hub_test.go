package server

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/omochice/chatroom/pkg/protocol"
)

func newTestHub(t *testing.T, limits Limits) *Hub {
	t.Helper()
	h := NewHub(limits)
	h.hashCost = bcrypt.MinCost
	return h
}

func addAccount(t *testing.T, h *Hub, username, password string, admin bool) {
	t.Helper()
	if err := h.AddAccount(username, password, admin); err != nil {
		t.Fatalf("AddAccount(%q) error = %v", username, err)
	}
}

func reasonOf(t *testing.T, err error) protocol.Reason {
	t.Helper()
	var rej *rejection
	if !errors.As(err, &rej) {
		t.Fatalf("error = %v, want rejection", err)
	}
	return rej.reason
}

func newPeer(h *Hub, t *testing.T) *Peer {
	t.Helper()
	p := &Peer{Outgoing: make(chan []byte, 8)}
	if err := h.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return p
}

func TestHub_Accounts(t *testing.T) {
	h := newTestHub(t, Limits{MaxUsers: 2})

	tests := []struct {
		name     string
		username string
		password string
		want     protocol.Reason
		ok       bool
	}{
		{"valid", "alice", "secret", 0, true},
		{"duplicate", "alice", "secret", protocol.ReasonUserExists, false},
		{"empty username", "", "secret", protocol.ReasonUsernameLength, false},
		{"bad username chars", "al ice", "secret", protocol.ReasonUsernameChars, false},
		{"short password", "bob", "1234", protocol.ReasonPasswordLength, false},
		{"bad password chars", "bob", "sec ret", protocol.ReasonPasswordChars, false},
		{"second", "bob", "secret", 0, true},
		{"full", "carol", "secret", protocol.ReasonMaxUsers, false},
	}

	for _, tt := range tests {
		err := h.CreateAccount(tt.username, tt.password)
		if tt.ok {
			if err != nil {
				t.Errorf("%s: CreateAccount() error = %v", tt.name, err)
			}
			continue
		}
		if got := reasonOf(t, err); got != tt.want {
			t.Errorf("%s: reason = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHub_Login(t *testing.T) {
	h := newTestHub(t, Limits{})
	if err := h.CreateAccount("alice", "secret"); err != nil {
		t.Fatal(err)
	}
	p1 := newPeer(h, t)
	p2 := newPeer(h, t)

	if got := reasonOf(t, h.Login(p1, "bob", "secret")); got != protocol.ReasonUserNotFound {
		t.Errorf("unknown user reason = %v", got)
	}
	if got := reasonOf(t, h.Login(p1, "alice", "wrong1")); got != protocol.ReasonIncorrectPassword {
		t.Errorf("wrong password reason = %v", got)
	}
	if err := h.Login(p1, "alice", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got := reasonOf(t, h.Login(p2, "alice", "secret")); got != protocol.ReasonUserLoggedIn {
		t.Errorf("second session reason = %v", got)
	}

	h.Unregister(p1)
	if err := h.Login(p2, "alice", "secret"); err != nil {
		t.Errorf("Login() after first session ended error = %v", err)
	}
}

func TestHub_AdminOperations(t *testing.T) {
	h := newTestHub(t, Limits{})
	addAccount(t, h, "root", "rootpass", true)
	if err := h.CreateAccount("alice", "secret"); err != nil {
		t.Fatal(err)
	}
	admin := newPeer(h, t)
	user := newPeer(h, t)
	if err := h.Login(admin, "root", "rootpass"); err != nil {
		t.Fatal(err)
	}
	if err := h.Login(user, "alice", "secret"); err != nil {
		t.Fatal(err)
	}

	if got := reasonOf(t, h.CreateRoom(user, "lobby")); got != protocol.ReasonAdminRequired {
		t.Errorf("non-admin create reason = %v", got)
	}
	if got := reasonOf(t, h.SetAdmin(admin, "root", false)); got != protocol.ReasonAdminSelf {
		t.Errorf("self revoke reason = %v", got)
	}
	if got := reasonOf(t, h.DeleteAccount(admin, "nobody")); got != protocol.ReasonUserNotFound {
		t.Errorf("delete unknown reason = %v", got)
	}
	if err := h.SetAdmin(admin, "alice", true); err != nil {
		t.Fatalf("SetAdmin() error = %v", err)
	}
	if err := h.CreateRoom(user, "lobby"); err != nil {
		t.Errorf("CreateRoom() by new admin error = %v", err)
	}
}

func TestHub_Rooms(t *testing.T) {
	h := newTestHub(t, Limits{MaxRooms: 2})
	addAccount(t, h, "root", "rootpass", true)
	admin := newPeer(h, t)
	if err := h.Login(admin, "root", "rootpass"); err != nil {
		t.Fatal(err)
	}

	if got := reasonOf(t, func() error { _, err := h.ListRooms(admin); return err }()); got != protocol.ReasonNoRooms {
		t.Errorf("empty list reason = %v", got)
	}

	tests := []struct {
		room string
		want protocol.Reason
		ok   bool
	}{
		{"lobby", 0, true},
		{"lobby", protocol.ReasonRoomExists, false},
		{"abc", protocol.ReasonRoomLength, false},
		{"bad-name", protocol.ReasonRoomChars, false},
		{"Admin", protocol.ReasonRoomReserved, false},
		{"study", 0, true},
		{"third", protocol.ReasonMaxRooms, false},
	}
	for _, tt := range tests {
		err := h.CreateRoom(admin, tt.room)
		if tt.ok {
			if err != nil {
				t.Errorf("CreateRoom(%q) error = %v", tt.room, err)
			}
			continue
		}
		if got := reasonOf(t, err); got != tt.want {
			t.Errorf("CreateRoom(%q) reason = %v, want %v", tt.room, got, tt.want)
		}
	}

	list, err := h.ListRooms(admin)
	if err != nil || list != "lobby\nstudy\n" {
		t.Errorf("ListRooms() = %q, %v", list, err)
	}

	if _, err := h.Join(admin, "lobby"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := reasonOf(t, h.DeleteRoom(admin, "lobby")); got != protocol.ReasonRoomInUse {
		t.Errorf("delete occupied reason = %v", got)
	}
	if err := h.Leave(admin); err != nil {
		t.Fatal(err)
	}
	if err := h.DeleteRoom(admin, "lobby"); err != nil {
		t.Errorf("DeleteRoom() error = %v", err)
	}
	if got := reasonOf(t, h.DeleteRoom(admin, "lobby")); got != protocol.ReasonRoomNotFound {
		t.Errorf("delete missing reason = %v", got)
	}
}

func TestHub_ChatBroadcastAndHistory(t *testing.T) {
	h := newTestHub(t, Limits{HistoryBytes: 32})
	addAccount(t, h, "root", "rootpass", true)
	addAccount(t, h, "bob", "bobpass", false)
	alice := newPeer(h, t)
	bob := newPeer(h, t)
	if err := h.Login(alice, "root", "rootpass"); err != nil {
		t.Fatal(err)
	}
	if err := h.Login(bob, "bob", "bobpass"); err != nil {
		t.Fatal(err)
	}
	if err := h.CreateRoom(alice, "lobby"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []*Peer{alice, bob} {
		if _, err := h.Join(p, "lobby"); err != nil {
			t.Fatal(err)
		}
	}

	sent, err := h.Chat(bob, "hi")
	if err != nil || sent != 1 {
		t.Fatalf("Chat() = %d, %v", sent, err)
	}
	select {
	case data := <-alice.Outgoing:
		want := append([]byte{2, 6, 3}, "bob>hi"...)
		if string(data) != string(want) {
			t.Errorf("broadcast = %v, want %v", data, want)
		}
	default:
		t.Fatal("no broadcast queued for alice")
	}
	if len(bob.Outgoing) != 0 {
		t.Error("sender received its own broadcast")
	}

	for range 5 {
		if _, err := h.Chat(bob, "a longer line"); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.Leave(alice); err != nil {
		t.Fatal(err)
	}
	history, err := h.Join(alice, "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) > 32 {
		t.Errorf("history length = %d, want <= 32", len(history))
	}
	if strings.Contains(history, "bob>hi\n") {
		t.Error("oldest line was not dropped")
	}
	if !strings.HasSuffix(history, "bob>a longer line\n") {
		t.Errorf("history = %q", history)
	}
}

func TestHub_MaxClients(t *testing.T) {
	h := newTestHub(t, Limits{MaxClients: 1})
	newPeer(h, t)
	if got := reasonOf(t, h.Register(&Peer{})); got != protocol.ReasonMaxClients {
		t.Errorf("reason = %v, want max clients", got)
	}
}
