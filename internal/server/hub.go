package server

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/omochice/chatroom/pkg/protocol"
)

// rejection is a refusal the handler reports with a Reject reply.
type rejection struct {
	reason protocol.Reason
}

func (r *rejection) Error() string {
	return r.reason.Message()
}

func reject(reason protocol.Reason) error {
	return &rejection{reason: reason}
}

// Limits bounds what the hub stores.
type Limits struct {
	MaxUsers   int
	MaxClients int
	MaxRooms   int
	// HistoryBytes caps the history kept per room and sent on join.
	HistoryBytes  int
	ReservedRooms []string
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxUsers:      100,
		MaxClients:    50,
		MaxRooms:      20,
		HistoryBytes:  protocol.BufferSize,
		ReservedRooms: []string{"admin", "server"},
	}
}

// withDefaults fills unset fields from DefaultLimits. A nil ReservedRooms
// uses the default list; an empty one reserves nothing.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxUsers <= 0 {
		l.MaxUsers = d.MaxUsers
	}
	if l.MaxClients <= 0 {
		l.MaxClients = d.MaxClients
	}
	if l.MaxRooms <= 0 {
		l.MaxRooms = d.MaxRooms
	}
	if l.HistoryBytes <= 0 {
		l.HistoryBytes = d.HistoryBytes
	}
	if l.ReservedRooms == nil {
		l.ReservedRooms = d.ReservedRooms
	}
	return l
}

// Peer is one connected client.
type Peer struct {
	ID       string
	Username string
	Outgoing chan []byte
	room     *room
}

type account struct {
	hash   []byte
	admin  bool
	online *Peer
}

type room struct {
	name    string
	members map[*Peer]struct{}
	history []string
	size    int
}

// record appends a chat line, dropping the oldest lines to stay within limit.
func (r *room) record(line string, limit int) {
	entry := line + "\n"
	r.history = append(r.history, entry)
	r.size += len(entry)
	for r.size > limit && len(r.history) > 0 {
		r.size -= len(r.history[0])
		r.history = r.history[1:]
	}
}

// Hub holds accounts, rooms and connected peers. Raw and WebSocket
// connections share a single Hub.
type Hub struct {
	limits   Limits
	hashCost int
	accounts map[string]*account
	rooms    map[string]*room
	peers    map[*Peer]bool
	mu       sync.Mutex
}

// NewHub creates a new Hub.
func NewHub(limits Limits) *Hub {
	return &Hub{
		limits:   limits.withDefaults(),
		hashCost: bcrypt.DefaultCost,
		accounts: make(map[string]*account),
		rooms:    make(map[string]*room),
		peers:    make(map[*Peer]bool),
	}
}

// Register adds a peer, failing when the client limit is reached.
func (h *Hub) Register(peer *Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.peers) >= h.limits.MaxClients {
		return reject(protocol.ReasonMaxClients)
	}
	h.peers[peer] = true
	return nil
}

// Unregister removes a peer, logging it out and taking it out of its room.
func (h *Hub) Unregister(peer *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(peer)
	if acct, ok := h.accounts[peer.Username]; ok && acct.online == peer {
		acct.online = nil
	}
	delete(h.peers, peer)
}

// ClientCount returns number of connected peers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// AddAccount creates an account without the register checks. It is used to
// seed the administrator.
func (h *Hub) AddAccount(username, password string, admin bool) error {
	hash, err := h.hash(password)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts[username] = &account{hash: hash, admin: admin}
	return nil
}

// CreateAccount registers a new user.
func (h *Hub) CreateAccount(username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := h.hash(password)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.accounts[username]; ok {
		return reject(protocol.ReasonUserExists)
	}
	if len(h.accounts) >= h.limits.MaxUsers {
		return reject(protocol.ReasonMaxUsers)
	}
	h.accounts[username] = &account{hash: hash}
	return nil
}

// Login authenticates peer as username.
func (h *Hub) Login(peer *Peer, username, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	h.mu.Lock()
	acct, ok := h.accounts[username]
	h.mu.Unlock()
	if !ok {
		return reject(protocol.ReasonUserNotFound)
	}
	// bcrypt runs without holding mu.
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		return reject(protocol.ReasonIncorrectPassword)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if peer.Username != "" {
		return reject(protocol.ReasonUserLoggedIn)
	}
	if h.accounts[username] != acct {
		return reject(protocol.ReasonUserNotFound)
	}
	if acct.online != nil {
		return reject(protocol.ReasonUserLoggedIn)
	}
	acct.online = peer
	peer.Username = username
	return nil
}

// Logout ends the peer's authenticated session.
func (h *Hub) Logout(peer *Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peer.Username == "" || peer.room != nil {
		return reject(protocol.ReasonInvalidPacket)
	}
	if acct, ok := h.accounts[peer.Username]; ok && acct.online == peer {
		acct.online = nil
	}
	peer.Username = ""
	return nil
}

// requireAdminLocked checks that peer may administer target.
func (h *Hub) requireAdminLocked(peer *Peer, target string) (*account, error) {
	self, ok := h.accounts[peer.Username]
	if peer.Username == "" || !ok || !self.admin {
		return nil, reject(protocol.ReasonAdminRequired)
	}
	if target == peer.Username {
		return nil, reject(protocol.ReasonAdminSelf)
	}
	acct, ok := h.accounts[target]
	if !ok {
		return nil, reject(protocol.ReasonUserNotFound)
	}
	return acct, nil
}

// SetAdmin grants or revokes admin privileges on target.
func (h *Hub) SetAdmin(peer *Peer, target string, admin bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	acct, err := h.requireAdminLocked(peer, target)
	if err != nil {
		return err
	}
	acct.admin = admin
	return nil
}

// DeleteAccount removes target's account.
func (h *Hub) DeleteAccount(peer *Peer, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.requireAdminLocked(peer, target); err != nil {
		return err
	}
	delete(h.accounts, target)
	return nil
}

func (h *Hub) isAdminLocked(peer *Peer) bool {
	acct, ok := h.accounts[peer.Username]
	return peer.Username != "" && ok && acct.admin
}

// CreateRoom adds a room. Requires admin privileges.
func (h *Hub) CreateRoom(peer *Peer, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.isAdminLocked(peer) {
		return reject(protocol.ReasonAdminRequired)
	}
	if err := validateRoomName(name); err != nil {
		return err
	}
	if slices.ContainsFunc(h.limits.ReservedRooms, func(r string) bool { return strings.EqualFold(r, name) }) {
		return reject(protocol.ReasonRoomReserved)
	}
	if _, ok := h.rooms[name]; ok {
		return reject(protocol.ReasonRoomExists)
	}
	if len(h.rooms) >= h.limits.MaxRooms {
		return reject(protocol.ReasonMaxRooms)
	}
	h.rooms[name] = &room{name: name, members: make(map[*Peer]struct{})}
	return nil
}

// DeleteRoom removes an empty room. Requires admin privileges.
func (h *Hub) DeleteRoom(peer *Peer, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.isAdminLocked(peer) {
		return reject(protocol.ReasonAdminRequired)
	}
	r, ok := h.rooms[name]
	if !ok {
		return reject(protocol.ReasonRoomNotFound)
	}
	if len(r.members) > 0 {
		return reject(protocol.ReasonRoomInUse)
	}
	delete(h.rooms, name)
	return nil
}

// ListRooms returns the room names, one per line, sorted.
func (h *Hub) ListRooms(peer *Peer) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peer.Username == "" {
		return "", reject(protocol.ReasonInvalidPacket)
	}
	if len(h.rooms) == 0 {
		return "", reject(protocol.ReasonNoRooms)
	}
	names := make([]string, 0, len(h.rooms))
	for name := range h.rooms {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		if b.Len()+len(name)+1 > protocol.BufferSize {
			break
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Join puts peer in the room and returns its history.
func (h *Hub) Join(peer *Peer, name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peer.Username == "" || peer.room != nil {
		return "", reject(protocol.ReasonInvalidPacket)
	}
	r, ok := h.rooms[name]
	if !ok {
		return "", reject(protocol.ReasonRoomNotFound)
	}
	r.members[peer] = struct{}{}
	peer.room = r
	return strings.Join(r.history, ""), nil
}

// Leave takes peer out of its room.
func (h *Hub) Leave(peer *Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peer.room == nil {
		return reject(protocol.ReasonInvalidPacket)
	}
	h.leaveLocked(peer)
	return nil
}

func (h *Hub) leaveLocked(peer *Peer) {
	if peer.room == nil {
		return
	}
	delete(peer.room.members, peer)
	peer.room = nil
}

// Chat records text in the peer's room and sends it to every other member.
// It returns the number of members the line was queued for.
func (h *Hub) Chat(peer *Peer, text string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := peer.room
	if r == nil {
		return 0, reject(protocol.ReasonInvalidPacket)
	}

	line := fmt.Sprintf("%s>%s", peer.Username, text)
	r.record(line, h.limits.HistoryBytes)

	data := protocol.Acknowledge(protocol.TypeChat, protocol.SubChat, []byte(line)).Encode()
	sent := 0
	for member := range r.members {
		if member == peer {
			continue
		}
		select {
		case member.Outgoing <- data:
			sent++
		default:
		}
	}
	return sent, nil
}
