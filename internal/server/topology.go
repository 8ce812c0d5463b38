package server

import "sync"

const (
	userRoomPrefix = "user:"
	chatRoomPrefix = "chat:"
)

// UserRoom returns the personal room key of a user.
func UserRoom(userId string) string {
	return userRoomPrefix + userId
}

// ChatRoom returns the room key of a conversation.
func ChatRoom(chatId string) string {
	return chatRoomPrefix + chatId
}

// RoomTopology tracks which live connections are in which rooms. It is safe
// for concurrent use.
type RoomTopology struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

func NewRoomTopology() *RoomTopology {
	return &RoomTopology{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Join adds c to room and reports whether it was not already a member.
func (rt *RoomTopology) Join(room string, c *Client) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	members, ok := rt.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		rt.rooms[room] = members
	}
	if _, ok := members[c]; ok {
		return false
	}
	members[c] = struct{}{}

	rooms, ok := rt.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		rt.joined[c] = rooms
	}
	rooms[room] = struct{}{}

	return true
}

// Leave removes c from room. Empty rooms are dropped.
func (rt *RoomTopology) Leave(room string, c *Client) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.leave(room, c)
}

func (rt *RoomTopology) leave(room string, c *Client) {
	if members, ok := rt.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(rt.rooms, room)
		}
	}

	if rooms, ok := rt.joined[c]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(rt.joined, c)
		}
	}
}

// LeaveAll removes c from every room it joined and returns those rooms.
func (rt *RoomTopology) LeaveAll(c *Client) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var left []string
	for room := range rt.joined[c] {
		left = append(left, room)
	}
	for _, room := range left {
		rt.leave(room, c)
	}

	return left
}

// MembersOf returns a snapshot of the connections in room.
func (rt *RoomTopology) MembersOf(room string) []*Client {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	members := make([]*Client, 0, len(rt.rooms[room]))
	for c := range rt.rooms[room] {
		members = append(members, c)
	}

	return members
}

// Size returns the number of connections in room.
func (rt *RoomTopology) Size(room string) int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	return len(rt.rooms[room])
}

// NumRooms returns the number of non-empty rooms.
func (rt *RoomTopology) NumRooms() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	return len(rt.rooms)
}
