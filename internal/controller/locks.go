package controller

import "sync"

// roomLocks serializes the handling of events that touch the same room,
// so broadcasts leave in the order the room changed.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// Lock blocks until roomName is free and returns its unlock func.
func (l *roomLocks) Lock(roomName string) func() {
	l.mu.Lock()
	rl, ok := l.locks[roomName]
	if !ok {
		rl = &roomLock{}
		l.locks[roomName] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomName)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
