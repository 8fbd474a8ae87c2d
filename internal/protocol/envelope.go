package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BioHazard786/flipboard/internal/command"
)

// Role of a participant in a room.
type Role string

const (
	RoleHost   Role = "host"
	RoleRemote Role = "remote"
)

func (r Role) Valid() bool {
	return r == RoleHost || r == RoleRemote
}

// Envelope types exchanged with the relay broker.
const (
	TypeRegister   = "register"
	TypeCommand    = "command"
	TypeRegistered = "registered"
	TypePeerJoined = "peer_joined"
	TypePeerLeft   = "peer_left"
	TypeError      = "error"
)

// MaxRoomIDLength bounds room tokens accepted at registration.
const MaxRoomIDLength = 64

var (
	ErrMalformed      = errors.New("malformed envelope")
	ErrInvalidRole    = errors.New("invalid role")
	ErrMissingRoom    = errors.New("missing room id")
	ErrRoomIDTooLong  = errors.New("room id too long")
	ErrNotACommand    = errors.New("envelope does not carry a command")
	ErrMissingCommand = errors.New("command envelope without data")
)

// Envelope is the JSON object carried over the relay socket in both
// directions. Data holds a serialized command.Command and is forwarded
// by the broker without being re-encoded.
type Envelope struct {
	Type    string          `json:"type"`
	Role    Role            `json:"role,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func Register(role Role, roomID string) Envelope {
	return Envelope{Type: TypeRegister, Role: role, RoomID: roomID}
}

func Registered(role Role, roomID string) Envelope {
	return Envelope{Type: TypeRegistered, Role: role, RoomID: roomID}
}

func PeerJoined(role Role) Envelope {
	return Envelope{Type: TypePeerJoined, Role: role}
}

func PeerLeft(role Role) Envelope {
	return Envelope{Type: TypePeerLeft, Role: role}
}

func Error(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}

// CommandEnvelope wraps cmd as {type:"command", data:cmd}.
func CommandEnvelope(cmd command.Command) (Envelope, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode command: %w", err)
	}
	return Envelope{Type: TypeCommand, Data: data}, nil
}

// Decode parses a single envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// ValidateRegister checks the fields a register envelope must carry.
func (e Envelope) ValidateRegister() error {
	if !e.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, e.Role)
	}
	if e.RoomID == "" {
		return ErrMissingRoom
	}
	if len(e.RoomID) > MaxRoomIDLength {
		return ErrRoomIDTooLong
	}
	return nil
}

// Command decodes and validates the command carried in Data.
func (e Envelope) Command() (command.Command, error) {
	if e.Type != TypeCommand {
		return command.Command{}, ErrNotACommand
	}
	if len(e.Data) == 0 {
		return command.Command{}, ErrMissingCommand
	}
	return command.Parse(e.Data)
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
