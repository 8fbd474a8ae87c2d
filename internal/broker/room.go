package broker

import "github.com/BioHazard786/flipboard/internal/protocol"

// Room is the set of connections registered under one token, in join
// order. A room holds any number of hosts and remotes.
type Room struct {
	ID           string
	participants []*Client
}

func newRoom(id string) *Room {
	return &Room{ID: id}
}

func (r *Room) add(c *Client) {
	r.participants = append(r.participants, c)
}

// remove reports whether c was a participant.
func (r *Room) remove(c *Client) bool {
	for i, p := range r.participants {
		if p == c {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) others(c *Client) []*Client {
	out := make([]*Client, 0, len(r.participants))
	for _, p := range r.participants {
		if p != c {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) empty() bool {
	return len(r.participants) == 0
}

func (r *Room) count(role protocol.Role) int {
	n := 0
	for _, p := range r.participants {
		if p.role == role {
			n++
		}
	}
	return n
}
