package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BioHazard786/flipboard/internal/connection"
	"github.com/BioHazard786/flipboard/internal/protocol"
)

// Room is where a remote should connect, as read from a room link.
type Room struct {
	ID string
	// Mode is empty when the input did not name one.
	Mode connection.Mode
}

// ParseRoom accepts either a bare room token or a room link of the form
// produced by RoomLink.
func ParseRoom(input string) (Room, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Room{}, fmt.Errorf("room must not be empty")
	}

	if !strings.Contains(input, "?") && !strings.Contains(input, "://") {
		return validRoom(Room{ID: input})
	}

	u, err := url.Parse(input)
	if err != nil {
		return Room{}, fmt.Errorf("invalid room link: %w", err)
	}
	q := u.Query()
	room := Room{ID: strings.TrimSpace(q.Get("remote"))}
	if room.ID == "" {
		return Room{}, fmt.Errorf("room link has no remote parameter")
	}
	if raw := q.Get("mode"); raw != "" {
		mode, err := connection.ParseMode(raw)
		if err != nil {
			return Room{}, err
		}
		room.Mode = mode
	}
	return validRoom(room)
}

func validRoom(room Room) (Room, error) {
	if len(room.ID) > protocol.MaxRoomIDLength {
		return Room{}, protocol.ErrRoomIDTooLong
	}
	if strings.ContainsAny(room.ID, " \t\r\n/") {
		return Room{}, fmt.Errorf("invalid room token %q", room.ID)
	}
	return room, nil
}
