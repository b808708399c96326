package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pterm/pterm"

	"github.com/omochice/chatroom/internal/client"
	"github.com/omochice/chatroom/internal/session"
	"github.com/omochice/chatroom/internal/transcript"
	"github.com/omochice/chatroom/pkg/protocol"
)

// prompter reads the user's input.
type prompter interface {
	Line(prompt string) (string, error)
	Password(prompt string) (string, error)
}

type command struct {
	name   string
	help   string
	action string
	phases []session.Phase
	run    func(sh *shell, c *client.Client) error
}

var (
	connectedOnly = []session.Phase{session.Connected}
	notInRoom     = []session.Phase{session.Connected, session.Authenticated}
	loggedIn      = []session.Phase{session.Authenticated}
	inRoom        = []session.Phase{session.InRoom}
)

var commands = []command{
	{"login", "Log in to the chat server", "log in", connectedOnly, (*shell).login},
	{"register", "Register a new user", "register", notInRoom, (*shell).register},
	{"logout", "Log out", "logout", loggedIn, (*shell).logout},
	{"admin", "Give a user admin privileges", "grant admin privileges", loggedIn, (*shell).grantAdmin},
	{"admin_remove", "Remove a user's admin privileges", "remove admin privileges", loggedIn, (*shell).revokeAdmin},
	{"deluser", "Delete a user", "delete a user", loggedIn, (*shell).deleteUser},
	{"list", "List the rooms", "list rooms", loggedIn, (*shell).listRooms},
	{"addroom", "Add a room", "add a room", loggedIn, (*shell).addRoom},
	{"delroom", "Delete a room", "delete a room", loggedIn, (*shell).deleteRoom},
	{"join", "Join a room", "join a room", loggedIn, (*shell).join},
	{"leave", "Leave the current room", "leave a room", inRoom, (*shell).leave},
}

func lookup(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

var (
	chatStyle   = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	userStyle   = pterm.NewStyle(pterm.FgYellow, pterm.Bold)
	roomStyle   = pterm.NewStyle(pterm.FgMagenta, pterm.Bold)
	errorOutput = pterm.Error
)

// shell runs the interactive command loop over a client.
type shell struct {
	client atomic.Pointer[client.Client]
	in     prompter
	out    io.Writer
	record *transcript.Recorder

	// mu keeps watcher output from interleaving with command output.
	mu sync.Mutex
}

func newShell(in prompter, out io.Writer, record *transcript.Recorder) *shell {
	return &shell{in: in, out: out, record: record}
}

func (sh *shell) attach(c *client.Client) {
	sh.client.Store(c)
}

func (sh *shell) println(a ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	pterm.Fprintln(sh.out, a...)
}

func (sh *shell) errorf(format string, a ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	errorOutput.WithWriter(sh.out).Printfln(format, a...)
}

// formatChat renders "user>text" as "[user@room]>text".
func formatChat(line, room string) string {
	user, text, ok := strings.Cut(line, ">")
	if !ok {
		return line
	}
	return chatStyle.Sprintf("[%s@%s]>", user, room) + text
}

// showChat is the client's chat callback.
func (sh *shell) showChat(line string) {
	room := ""
	if c := sh.client.Load(); c != nil {
		room = c.Snapshot().Room
	}
	sh.println(formatChat(line, room))
	if sh.record != nil {
		if err := sh.record.Chat(line); err != nil {
			sh.errorf("transcript: %v", err)
		}
	}
}

// showDisconnected is the client's disconnect callback.
func (sh *shell) showDisconnected(reason string) {
	sh.errorf("Connection to server lost: %s", reason)
	if sh.record != nil {
		_ = sh.record.Disconnected(reason)
	}
}

func (sh *shell) prompt() string {
	c := sh.client.Load()
	if c == nil {
		return "> "
	}
	st := c.Snapshot()
	switch st.Phase {
	case session.Authenticated:
		return userStyle.Sprintf("[%s]> ", st.Username)
	case session.InRoom:
		return roomStyle.Sprintf("[%s@%s]> ", st.Username, st.Room)
	default:
		return userStyle.Sprint("[NOT LOGGED IN]> ")
	}
}

// loop reads commands until the user quits, input ends or the connection
// is lost.
func (sh *shell) loop() error {
	for {
		line, err := sh.in.Line(sh.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if sh.execute(line) {
			return nil
		}
	}
}

// execute runs one input line and reports whether the shell should stop.
func (sh *shell) execute(line string) bool {
	c := sh.client.Load()
	name := strings.TrimSpace(line)
	switch name {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help", "?":
		sh.help()
		return false
	}

	phase := c.Phase()
	if phase == session.Disconnected {
		sh.errorf("Connection to server lost. Shutting down...")
		return true
	}

	cmd, ok := lookup(name)
	if !ok {
		if phase == session.InRoom {
			return sh.report("send", c.SendChat(line))
		}
		sh.errorf("%s is not a recognized command", name)
		return false
	}

	allowed := false
	for _, p := range cmd.phases {
		allowed = allowed || p == phase
	}
	if !allowed {
		sh.errorf("%s", preconditionMessage(cmd, phase))
		return false
	}
	return sh.report(cmd.name, cmd.run(sh, c))
}

func preconditionMessage(cmd command, phase session.Phase) string {
	switch {
	case cmd.name == "login" && phase != session.Connected:
		return "You are already logged in."
	case phase == session.Connected:
		return fmt.Sprintf("You must be a logged in user to %s.", cmd.action)
	case phase == session.InRoom:
		return fmt.Sprintf("Leave the room before you %s.", cmd.action)
	default:
		return fmt.Sprintf("You must be in a room to %s.", cmd.action)
	}
}

// report prints err and reports whether the session is over.
func (sh *shell) report(op string, err error) bool {
	var preconditionErr *client.PreconditionError
	switch {
	case err == nil:
		return false
	case errors.Is(err, client.ErrDisconnected), errors.Is(err, client.ErrServerDisconnected):
		sh.errorf("Connection to server lost. Shutting down...")
		return true
	case errors.As(err, &preconditionErr):
		if cmd, ok := lookup(op); ok {
			sh.errorf("%s", preconditionMessage(cmd, preconditionErr.Phase))
		} else {
			sh.errorf("You must be in a room to chat.")
		}
	case errors.Is(err, protocol.ErrFieldTooLong):
		sh.errorf("%v", err)
	default:
		sh.errorf("%s: %v", op, err)
	}
	return false
}

func (sh *shell) help() {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-13s %s\n", cmd.name, cmd.help)
	}
	b.WriteString("  quit          Leave the server and exit\n")
	b.WriteString("Any other line is sent to the room you are in.")
	sh.println(b.String())
}

func (sh *shell) login(c *client.Client) error {
	username, err := sh.in.Line("Enter your username: ")
	if err != nil {
		return err
	}
	password, err := sh.in.Password("Enter your password: ")
	if err != nil {
		return err
	}
	if err := c.Login(username, password); err != nil {
		return err
	}
	sh.println(fmt.Sprintf("%s logged in.", username))
	return nil
}

func (sh *shell) register(c *client.Client) error {
	username, err := sh.in.Line("Enter your username: ")
	if err != nil {
		return err
	}
	password, err := sh.in.Password("Enter your password: ")
	if err != nil {
		return err
	}
	confirm, err := sh.in.Password("Confirm your password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		sh.errorf("Passwords do not match.")
		return nil
	}
	if err := c.Register(username, password); err != nil {
		return err
	}
	sh.println(fmt.Sprintf("%s registered.", username))
	return nil
}

func (sh *shell) logout(c *client.Client) error {
	if err := c.Logout(); err != nil {
		return err
	}
	sh.println("Logged out.")
	return nil
}

// named prompts for one name and applies op to it.
func (sh *shell) named(prompt string, op func(string) error, done string) error {
	name, err := sh.in.Line(prompt)
	if err != nil {
		return err
	}
	if err := op(name); err != nil {
		return err
	}
	sh.println(fmt.Sprintf(done, name))
	return nil
}

func (sh *shell) grantAdmin(c *client.Client) error {
	return sh.named("Enter the username to give admin privileges to: ", c.GrantAdmin, "%s is now an admin.")
}

func (sh *shell) revokeAdmin(c *client.Client) error {
	return sh.named("Enter the username to remove admin privileges from: ", c.RevokeAdmin, "%s is no longer an admin.")
}

func (sh *shell) deleteUser(c *client.Client) error {
	return sh.named("Enter the username to delete: ", c.DeleteUser, "%s deleted.")
}

func (sh *shell) addRoom(c *client.Client) error {
	return sh.named("Enter the name of the room to add: ", c.CreateRoom, "Room %s added.")
}

func (sh *shell) deleteRoom(c *client.Client) error {
	return sh.named("Enter the name of the room to delete: ", c.DeleteRoom, "Room %s deleted.")
}

func (sh *shell) listRooms(c *client.Client) error {
	rooms, err := c.ListRooms()
	if err != nil {
		return err
	}
	sh.println("Rooms:\n" + strings.TrimRight(rooms, "\n"))
	return nil
}

func (sh *shell) join(c *client.Client) error {
	room, err := sh.in.Line("Enter the name of the room to join: ")
	if err != nil {
		return err
	}
	// History lines are printed by showChat as they are delivered.
	if _, err := c.Join(room); err != nil {
		return err
	}
	sh.println(fmt.Sprintf("Joined %s.", room))
	return nil
}

func (sh *shell) leave(c *client.Client) error {
	if err := c.Leave(); err != nil {
		return err
	}
	sh.println("Left the room.")
	return nil
}
