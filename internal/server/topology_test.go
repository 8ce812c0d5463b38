package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomKeys(t *testing.T) {
	assert.Equal(t, "user:42", UserRoom("42"))
	assert.Equal(t, "chat:42", ChatRoom("42"))
	assert.NotEqual(t, UserRoom("42"), ChatRoom("42"), "personal and chat rooms must not collide")
}

func TestRoomTopology_JoinLeave(t *testing.T) {
	rt := NewRoomTopology()
	c1 := &Client{id: "c1"}
	c2 := &Client{id: "c2"}

	assert.True(t, rt.Join("chat:1", c1), "expected first join to add the client")
	assert.False(t, rt.Join("chat:1", c1), "expected repeated join to be a no-op")
	assert.True(t, rt.Join("chat:1", c2))
	assert.Equal(t, 2, rt.Size("chat:1"))
	assert.ElementsMatch(t, []*Client{c1, c2}, rt.MembersOf("chat:1"))

	rt.Leave("chat:1", c1)
	assert.Equal(t, []*Client{c2}, rt.MembersOf("chat:1"))

	rt.Leave("chat:1", c2)
	assert.Equal(t, 0, rt.Size("chat:1"))
	assert.Equal(t, 0, rt.NumRooms(), "expected empty rooms to be dropped")

	// leaving a room never joined is harmless
	rt.Leave("chat:2", c1)
}

func TestRoomTopology_LeaveAll(t *testing.T) {
	rt := NewRoomTopology()
	c1 := &Client{id: "c1"}
	c2 := &Client{id: "c2"}

	rt.Join("user:a", c1)
	rt.Join("chat:1", c1)
	rt.Join("chat:2", c1)
	rt.Join("chat:1", c2)

	left := rt.LeaveAll(c1)
	assert.ElementsMatch(t, []string{"user:a", "chat:1", "chat:2"}, left)
	assert.Empty(t, rt.MembersOf("user:a"))
	assert.Empty(t, rt.MembersOf("chat:2"))
	assert.Equal(t, []*Client{c2}, rt.MembersOf("chat:1"))
	assert.Equal(t, 1, rt.NumRooms())

	assert.Empty(t, rt.LeaveAll(c1), "expected second LeaveAll to find nothing")
}

func TestRoomTopology_MembersOfIsSnapshot(t *testing.T) {
	rt := NewRoomTopology()
	c1 := &Client{id: "c1"}
	rt.Join("chat:1", c1)

	members := rt.MembersOf("chat:1")
	rt.Leave("chat:1", c1)

	assert.Len(t, members, 1, "expected snapshot to be unaffected by later changes")
	assert.Empty(t, rt.MembersOf("unknown"))
}
