package inmemory

import (
	"sync"

	"github.com/groovify/beatsync/internal/repository/connection"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
)

type repo struct {
	connList map[*wsrouter.Conn]string
	idList   map[string]*wsrouter.Conn
	mu       sync.RWMutex
	logger   zerolog.Logger
}

func NewRepo(logger zerolog.Logger) *repo {
	return &repo{
		connList: make(map[*wsrouter.Conn]string),
		idList:   make(map[string]*wsrouter.Conn),
		logger:   logger.With().Str("component", "connection.inmemory").Logger(),
	}
}

func (r *repo) Add(conn *wsrouter.Conn, memberID string) error {
	funcName := "Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug().Str("func", funcName).Str("member_id", memberID).Send()
	if r.connList[conn] != "" || r.idList[memberID] != nil {
		r.logger.Info().Str("func", funcName).Err(connection.ErrAlreadyExists).Send()
		return connection.ErrAlreadyExists
	}

	r.connList[conn] = memberID
	r.idList[memberID] = conn

	return nil
}

// RemoveByConn forgets conn and returns the member it belonged to. The
// websocket itself is left to its owner.
func (r *repo) RemoveByConn(conn *wsrouter.Conn) (string, error) {
	funcName := "RemoveByConn"
	r.mu.Lock()
	defer r.mu.Unlock()

	memberID, ok := r.connList[conn]
	if !ok {
		r.logger.Info().Str("func", funcName).Err(connection.ErrNotFound).Send()
		return "", connection.ErrNotFound
	}

	delete(r.connList, conn)
	delete(r.idList, memberID)

	r.logger.Debug().Str("func", funcName).Str("member_id", memberID).Send()
	return memberID, nil
}

func (r *repo) GetMemberID(conn *wsrouter.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberID, ok := r.connList[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return memberID, nil
}

func (r *repo) GetConn(memberID string) (*wsrouter.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.idList[memberID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

// GetConns resolves memberIDs in order, skipping members with no live connection.
func (r *repo) GetConns(memberIDs []string) []*wsrouter.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*wsrouter.Conn, 0, len(memberIDs))
	for _, id := range memberIDs {
		if conn, ok := r.idList[id]; ok {
			conns = append(conns, conn)
		}
	}

	return conns
}

// All lists every registered connection.
func (r *repo) All() []*wsrouter.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*wsrouter.Conn, 0, len(r.connList))
	for conn := range r.connList {
		conns = append(conns, conn)
	}

	return conns
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.idList)
}
