// Package transport defines what every command channel between a host
// and its remotes provides, independent of the network underneath.
package transport

import (
	"context"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/protocol"
)

// Status is the last-value-wins connection state of a channel.
type Status string

const (
	StatusDisconnected     Status = "disconnected"
	StatusConnecting       Status = "connecting"
	StatusConnected        Status = "connected"
	StatusError            Status = "error"
	StatusHostReady        Status = "host_ready"
	StatusTimeout          Status = "timeout"
	StatusHostNotFound     Status = "host_not_found"
	StatusHostDisconnected Status = "host_disconnected"
	StatusNegotiationError Status = "negotiation_error"
)

func (s Status) String() string { return string(s) }

// Failed reports whether s ends a connection attempt unsuccessfully.
func (s Status) Failed() bool {
	switch s {
	case StatusError, StatusTimeout, StatusHostNotFound, StatusNegotiationError:
		return true
	}
	return false
}

type Role = protocol.Role

const (
	RoleHost   = protocol.RoleHost
	RoleRemote = protocol.RoleRemote
)

type StatusHandler func(Status)

type CommandHandler func(command.Command)

// Channel is a bidirectional command path between a host and its remotes.
//
// InitHost and ConnectToHost block until the channel is usable or the
// attempt fails; the outcome is also published as a status. SendCommand
// never blocks and never fails: commands sent while not connected are
// logged and dropped.
//
// OnStatus and OnCommand keep a single handler each. A new handler
// replaces the previous one, and OnStatus replays the current status to
// it. Passing nil unsubscribes. Handlers run one at a time, in event
// order, on a goroutine owned by the channel.
type Channel interface {
	InitHost(ctx context.Context) (string, error)
	ConnectToHost(ctx context.Context, roomID string) error
	SendCommand(cmd command.Command)
	OnCommand(h CommandHandler)
	OnStatus(h StatusHandler)
	Status() Status
	RoomID() string
	Destroy()
}
