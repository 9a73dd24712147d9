package inmemory

import (
	"testing"

	"github.com/groovify/beatsync/internal/repository/connection"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepo(t *testing.T) {
	r := NewRepo(zerolog.Nop())
	c1 := wsrouter.NewConn(nil)
	c2 := wsrouter.NewConn(nil)

	require.NoError(t, r.Add(c1, "m1"))
	require.NoError(t, r.Add(c2, "m2"))
	assert.ErrorIs(t, r.Add(c1, "m3"), connection.ErrAlreadyExists)
	assert.ErrorIs(t, r.Add(wsrouter.NewConn(nil), "m1"), connection.ErrAlreadyExists)
	assert.Equal(t, 2, r.Len())

	id, err := r.GetMemberID(c2)
	require.NoError(t, err)
	assert.Equal(t, "m2", id)

	conn, err := r.GetConn("m1")
	require.NoError(t, err)
	assert.Same(t, c1, conn)

	assert.Equal(t, []*wsrouter.Conn{c2, c1}, r.GetConns([]string{"m2", "ghost", "m1"}))

	assert.ElementsMatch(t, []*wsrouter.Conn{c1, c2}, r.All())

	id, err = r.RemoveByConn(c1)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	_, err = r.GetConn("m1")
	assert.ErrorIs(t, err, connection.ErrNotFound)
	_, err = r.RemoveByConn(c1)
	assert.ErrorIs(t, err, connection.ErrNotFound)
	assert.Equal(t, 1, r.Len())
}
