// Package session tracks which room this client belongs to and in which
// role, and decides locally whether a queue action may be sent.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrNotInRoom       = errors.New("not in a room")
	ErrNotAdmin        = errors.New("only the room admin can do this")
	ErrControlDisabled = errors.New("the admin has not allowed listeners to control the queue")
	ErrRoleUnconfirmed = errors.New("waiting for the server to confirm the room role")
	ErrInvalidRoom     = errors.New("invalid room name")
)

type State int

const (
	NoRoom State = iota
	PendingJoin
	Listener
	Admin
)

func (s State) String() string {
	switch s {
	case NoRoom:
		return "no_room"
	case PendingJoin:
		return "pending_join"
	case Listener:
		return "listener"
	case Admin:
		return "admin"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// View is a point-in-time copy of the session.
type View struct {
	State            State
	Room             string
	RequestedAdmin   bool
	AnyoneCanControl bool
}

func (v View) InRoom() bool { return v.State != NoRoom }

type Machine struct {
	mu               sync.RWMutex
	state            State
	room             string
	requestedAdmin   bool
	anyoneCanControl bool

	store  Store
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Machine {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Machine{
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Join moves the session to PendingJoin for room and persists the record
// with the requested role. Joining while in another room replaces it.
func (m *Machine) Join(room string, asAdmin bool) error {
	room = strings.TrimSpace(room)
	if room == "" || len(room) > 64 {
		return ErrInvalidRoom
	}

	m.mu.Lock()
	m.state = PendingJoin
	m.room = room
	m.requestedAdmin = asAdmin
	m.anyoneCanControl = false
	m.mu.Unlock()

	m.logger.Info().Str("room", room).Bool("requested_admin", asAdmin).Msg("joining room")
	return m.save(Record{InRoom: true, RoomName: room, IsAdmin: asAdmin})
}

// ApplyAdminStatus applies a server role confirmation. It is applied
// unconditionally while in a room and ignored otherwise. It reports
// whether the state changed.
func (m *Machine) ApplyAdminStatus(isAdmin bool) (bool, error) {
	m.mu.Lock()
	if m.state == NoRoom {
		m.mu.Unlock()
		m.logger.Debug().Bool("is_admin", isAdmin).Msg("ignoring admin status outside a room")
		return false, nil
	}

	next := Listener
	if isAdmin {
		next = Admin
	}
	changed := m.state != next
	m.state = next
	room := m.room
	m.mu.Unlock()

	if changed {
		m.logger.Info().Str("room", room).Stringer("state", next).Msg("room role confirmed")
	}
	return changed, m.save(Record{InRoom: true, RoomName: room, IsAdmin: isAdmin})
}

func (m *Machine) SetAnyoneCanControl(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anyoneCanControl = enabled
}

// Leave returns to NoRoom and forgets the persisted record.
func (m *Machine) Leave() error {
	m.reset()
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session record: %w", err)
	}
	return nil
}

// Disconnected returns to NoRoom but keeps the persisted record so the
// membership can be restored on reconnect.
func (m *Machine) Disconnected() {
	m.reset()
}

func (m *Machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = NoRoom
	m.room = ""
	m.requestedAdmin = false
	m.anyoneCanControl = false
}

// Persisted returns the stored record; ok is false when there is nothing
// to restore.
func (m *Machine) Persisted() (Record, bool, error) {
	rec, err := m.store.Load()
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load session record: %w", err)
	}
	if !rec.InRoom || rec.RoomName == "" {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (m *Machine) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return View{
		State:            m.state,
		Room:             m.room,
		RequestedAdmin:   m.requestedAdmin,
		AnyoneCanControl: m.anyoneCanControl,
	}
}

// Authorize checks a against the current session. The returned error is
// one of the package sentinels.
func (m *Machine) Authorize(a Action) error {
	v := m.View()
	return Permit(v.State, v.AnyoneCanControl, a)
}

func (m *Machine) save(rec Record) error {
	if err := m.store.Save(rec); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist session record")
		return fmt.Errorf("failed to persist session record: %w", err)
	}
	return nil
}
