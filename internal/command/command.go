package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type tags a Command and decides the shape of its payload.
type Type string

// Command type constants.
const (
	TypeUpdateMessage  Type = "UPDATE_MESSAGE"
	TypeUpdateBoard    Type = "UPDATE_BOARD"
	TypeSetTheme       Type = "SET_THEME"
	TypeSetSound       Type = "SET_SOUND"
	TypeStartLiveClock Type = "START_LIVE_CLOCK"
	TypeStopLiveClock  Type = "STOP_LIVE_CLOCK"
)

// Theme is the display colour scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Sound is the audio feedback profile.
type Sound string

const (
	SoundLoud   Sound = "loud"
	SoundSubtle Sound = "subtle"
)

// DefaultClockVariant is used when START_LIVE_CLOCK carries no selector.
const DefaultClockVariant = Clock24h

var (
	ErrUnknownType    = errors.New("unknown command type")
	ErrInvalidPayload = errors.New("invalid command payload")
	ErrWrongType      = errors.New("command has a different type")
)

// Command is a typed display instruction. The payload is kept in its
// serialized form so that relays forward it byte for byte.
type Command struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newCommand(t Type, payload any) Command {
	if payload == nil {
		return Command{Type: t}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		// Only strings and boards reach here, both always marshal.
		panic(fmt.Sprintf("command: marshal %s payload: %v", t, err))
	}
	return Command{Type: t, Payload: b}
}

// UpdateMessage builds an UPDATE_MESSAGE command. The text is uppercased
// and padded or truncated to exactly Rows*Cols characters.
func UpdateMessage(text string) Command {
	return newCommand(TypeUpdateMessage, PadMessage(strings.ToUpper(text)))
}

// UpdateBoard builds an UPDATE_BOARD command carrying the grid verbatim.
func UpdateBoard(board Board) Command {
	return newCommand(TypeUpdateBoard, board)
}

func SetTheme(theme Theme) Command {
	return newCommand(TypeSetTheme, theme)
}

func SetSound(sound Sound) Command {
	return newCommand(TypeSetSound, sound)
}

// StartLiveClock asks the receiver to regenerate a clock board locally.
func StartLiveClock(variant string) Command {
	if variant == "" {
		variant = DefaultClockVariant
	}
	return newCommand(TypeStartLiveClock, variant)
}

func StopLiveClock() Command {
	return newCommand(TypeStopLiveClock, nil)
}

// Parse decodes a serialized command and validates it.
func Parse(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Validate checks the type tag and that the payload matches its contract.
func (c Command) Validate() error {
	switch c.Type {
	case TypeUpdateMessage:
		_, err := c.Message()
		return err
	case TypeUpdateBoard:
		_, err := c.Board()
		return err
	case TypeSetTheme:
		_, err := c.Theme()
		return err
	case TypeSetSound:
		_, err := c.Sound()
		return err
	case TypeStartLiveClock:
		_, err := c.ClockVariant()
		return err
	case TypeStopLiveClock:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
}

// Message returns the text of an UPDATE_MESSAGE command.
func (c Command) Message() (string, error) {
	var text string
	if err := c.decode(TypeUpdateMessage, &text); err != nil {
		return "", err
	}
	return text, nil
}

// Board returns the grid of an UPDATE_BOARD command.
func (c Command) Board() (Board, error) {
	var board Board
	if err := c.decode(TypeUpdateBoard, &board); err != nil {
		return nil, err
	}
	if len(board) == 0 {
		return nil, fmt.Errorf("%w: empty board", ErrInvalidPayload)
	}
	return board, nil
}

func (c Command) Theme() (Theme, error) {
	var theme Theme
	if err := c.decode(TypeSetTheme, &theme); err != nil {
		return "", err
	}
	switch theme {
	case ThemeDark, ThemeLight:
		return theme, nil
	}
	return "", fmt.Errorf("%w: theme %q", ErrInvalidPayload, theme)
}

func (c Command) Sound() (Sound, error) {
	var sound Sound
	if err := c.decode(TypeSetSound, &sound); err != nil {
		return "", err
	}
	switch sound {
	case SoundLoud, SoundSubtle:
		return sound, nil
	}
	return "", fmt.Errorf("%w: sound %q", ErrInvalidPayload, sound)
}

// ClockVariant returns the selector of a START_LIVE_CLOCK command.
func (c Command) ClockVariant() (string, error) {
	if c.Type != TypeStartLiveClock {
		return "", fmt.Errorf("%w: %s", ErrWrongType, c.Type)
	}
	if len(c.Payload) == 0 {
		return DefaultClockVariant, nil
	}
	var variant string
	if err := json.Unmarshal(c.Payload, &variant); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if variant == "" {
		variant = DefaultClockVariant
	}
	return variant, nil
}

func (c Command) decode(want Type, v any) error {
	if c.Type != want {
		return fmt.Errorf("%w: %s", ErrWrongType, c.Type)
	}
	if len(c.Payload) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (c Command) String() string {
	return string(c.Type)
}
