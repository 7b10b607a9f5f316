package hub

// Peer is the interface that hub/room expects from a connected socket.
type Peer interface {
	ID() string
	Send(frame string)
}

// Room is a set of peers that receive each other's chat frames. Rooms are
// owned by the hub loop and are not safe for concurrent use.
type Room struct {
	name    string
	members map[string]Peer
}

// NewRoom creates an empty room.
func NewRoom(name string) *Room {
	return &Room{
		name:    name,
		members: make(map[string]Peer),
	}
}

// Join adds a peer to the room.
func (r *Room) Join(p Peer) {
	r.members[p.ID()] = p
}

// Leave removes a peer from the room.
func (r *Room) Leave(p Peer) {
	delete(r.members, p.ID())
}

// Has reports whether p is a member.
func (r *Room) Has(p Peer) bool {
	_, ok := r.members[p.ID()]
	return ok
}

// Broadcast sends frame to every member.
func (r *Room) Broadcast(frame string) {
	for _, p := range r.members {
		p.Send(frame)
	}
}

// ClientCount returns the number of members.
func (r *Room) ClientCount() int {
	return len(r.members)
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}
