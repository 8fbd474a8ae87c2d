package broker

import (
	"context"
	"errors"

	"github.com/BioHazard786/flipboard/internal/protocol"
)

var ErrHubStopped = errors.New("hub stopped")

// Snapshot is a point-in-time summary of the room map. It never carries
// room tokens.
type Snapshot struct {
	Rooms    int `json:"rooms"`
	Hosts    int `json:"hosts"`
	Remotes  int `json:"remotes"`
	Relayed  int `json:"relayed"`
	Dropped  int `json:"dropped"`
	Rejected int `json:"rejected"`
}

// Snapshot asks the hub loop for its current counts.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return Snapshot{}, ErrHubStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (h *Hub) snapshot() Snapshot {
	s := Snapshot{
		Rooms:    len(h.rooms),
		Relayed:  h.counts.relayed,
		Dropped:  h.counts.dropped,
		Rejected: h.counts.rejected,
	}
	for _, room := range h.rooms {
		s.Hosts += room.count(protocol.RoleHost)
		s.Remotes += room.count(protocol.RoleRemote)
	}
	return s
}
