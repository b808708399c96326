package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/omochice/chatroom/internal/client"
	"github.com/omochice/chatroom/internal/server"
	"github.com/omochice/chatroom/internal/session"
	"github.com/omochice/chatroom/internal/testutil"
	"github.com/omochice/chatroom/internal/tlsutil"
	"github.com/omochice/chatroom/internal/transcript"
	"github.com/omochice/chatroom/internal/transport"
)

const wait = 3 * time.Second

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

// script answers prompts from a fixed list of lines.
type script struct {
	lines   []string
	prompts []string
}

func (s *script) Line(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *script) Password(prompt string) (string, error) {
	return s.Line(prompt)
}

// syncBuffer is a bytes.Buffer safe for the watcher and the shell.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServer(t *testing.T) string {
	t.Helper()
	cert, err := tlsutil.SelfSigned("127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	srv, err := server.New(server.Config{
		Address:       "127.0.0.1:0",
		TLSConfig:     &tls.Config{Certificates: []tls.Certificate{cert}, SessionTicketsDisabled: true},
		AdminUsername: "root",
		AdminPassword: "rootpass",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	go func() {
		_ = srv.Serve()
	}()
	t.Cleanup(srv.Stop)
	return srv.Addr()
}

func dial(t *testing.T, addr string, opts client.Options) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	opts.ChunkTimeout = 100 * time.Millisecond
	opts.PollInterval = 20 * time.Millisecond
	c, err := client.Dial(ctx, transport.Config{Address: addr, InsecureSkipVerify: true}, opts)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Quit() })
	return c
}

func newTestShell(t *testing.T, addr string, lines ...string) (*shell, *script, *syncBuffer, *client.Client) {
	t.Helper()
	in := &script{lines: lines}
	out := &syncBuffer{}
	var record bytes.Buffer
	sh := newShell(in, out, transcript.NewRecorder(&record))
	c := dial(t, addr, client.Options{OnChatMessage: sh.showChat, OnDisconnected: sh.showDisconnected})
	sh.attach(c)
	return sh, in, out, c
}

func TestShell_Session(t *testing.T) {
	addr := startServer(t)

	// A second member receives what the shell sends.
	chats := make(chan string, 8)
	other := dial(t, addr, client.Options{OnChatMessage: func(line string) { chats <- line }})

	sh, in, out, c := newTestShell(t, addr,
		"join",
		"register", "alice", "secret", "other",
		"register", "alice", "secret", "secret",
		"login", "root", "rootpass",
		"login",
		"addroom", "lobby",
		"list",
		"join", "lobby",
		"hello everyone",
		"leave",
		"logout",
		"bogus",
		"quit",
		"never read",
	)

	if err := other.Login("alice", "secret"); err == nil {
		t.Fatal("alice exists before the shell registered her")
	}

	if err := sh.loop(); err != nil {
		t.Fatalf("loop() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"You must be a logged in user to join a room.",
		"Passwords do not match.",
		"alice registered.",
		"root logged in.",
		"You are already logged in.",
		"Room lobby added.",
		"Rooms:\nlobby",
		"Joined lobby.",
		"Left the room.",
		"Logged out.",
		"bogus is not a recognized command",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q\n%s", want, got)
		}
	}
	if len(in.lines) != 1 {
		t.Errorf("quit left %d unread lines, want 1", len(in.lines))
	}
	if got := c.Phase(); got != session.Connected {
		t.Errorf("Phase() = %v, want connected", got)
	}

	if err := other.Login("alice", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := other.Join("lobby"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := testutil.RequireReceive(t, chats, wait, "history"); got != "root>hello everyone" {
		t.Errorf("history = %q", got)
	}
}

func TestShell_ReceivesChat(t *testing.T) {
	addr := startServer(t)
	sh, _, out, c := newTestShell(t, addr)

	if err := c.Login("root", "rootpass"); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateRoom("lobby"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Join("lobby"); err != nil {
		t.Fatal(err)
	}

	other := dial(t, addr, client.Options{})
	if err := other.Register("bob", "bobpass"); err != nil {
		t.Fatal(err)
	}
	if err := other.Login("bob", "bobpass"); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Join("lobby"); err != nil {
		t.Fatal(err)
	}
	if err := other.SendChat("hi root"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(wait)
	for !strings.Contains(out.String(), "]>hi root") {
		if time.Now().After(deadline) {
			t.Fatalf("chat line never shown, output:\n%s", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(out.String(), "[bob@lobby]>") {
		t.Errorf("chat line not formatted with the room, output:\n%s", out.String())
	}
	if got := sh.prompt(); !strings.Contains(got, "[root@lobby]> ") {
		t.Errorf("prompt() = %q", got)
	}
}

func TestFormatChat(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"bob>hi", "]>hi"},
		{"bob>a>b", "]>a>b"},
		{"no marker", "no marker"},
	}
	for _, tt := range tests {
		if got := formatChat(tt.line, "lobby"); !strings.HasSuffix(got, tt.want) {
			t.Errorf("formatChat(%q) = %q, want suffix %q", tt.line, got, tt.want)
		}
	}
}

func TestPreconditionMessage(t *testing.T) {
	join, _ := lookup("join")
	leave, _ := lookup("leave")
	login, _ := lookup("login")

	tests := []struct {
		cmd   command
		phase session.Phase
		want  string
	}{
		{join, session.Connected, "You must be a logged in user to join a room."},
		{join, session.InRoom, "Leave the room before you join a room."},
		{leave, session.Authenticated, "You must be in a room to leave a room."},
		{login, session.Authenticated, "You are already logged in."},
	}
	for _, tt := range tests {
		if got := preconditionMessage(tt.cmd, tt.phase); got != tt.want {
			t.Errorf("preconditionMessage(%s, %v) = %q, want %q", tt.cmd.name, tt.phase, got, tt.want)
		}
	}
}
