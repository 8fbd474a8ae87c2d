package command

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateMessage_UppercasesAndPads(t *testing.T) {
	cmd := UpdateMessage("hello")

	require.Equal(t, TypeUpdateMessage, cmd.Type)
	text, err := cmd.Message()
	require.NoError(t, err)
	assert.Len(t, text, TotalBits)
	assert.True(t, strings.HasPrefix(text, "HELLO "))
	assert.Equal(t, strings.Repeat(" ", TotalBits-5), text[5:])
}

func TestUpdateMessage_Truncates(t *testing.T) {
	cmd := UpdateMessage(strings.Repeat("x", TotalBits+10))

	text, err := cmd.Message()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("X", TotalBits), text)
}

func TestWireShape(t *testing.T) {
	data, err := json.Marshal(SetTheme(ThemeLight))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"SET_THEME","payload":"light"}`, string(data))

	data, err = json.Marshal(StopLiveClock())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"STOP_LIVE_CLOCK"}`, string(data))

	board := EmptyBoard()
	board[0][0] = Cell{Char: " ", Color: "[R]"}
	data, err = json.Marshal(UpdateBoard(board))
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"char":" ","color":"[R]"}`)
	assert.Contains(t, string(data), `{"char":" "}`)
}

func TestParse_AllTypes(t *testing.T) {
	board := BoardFromString("GRID")
	board[1][2].Color = "[G]"

	commands := []Command{
		UpdateMessage("hi there"),
		UpdateBoard(board),
		SetTheme(ThemeDark),
		SetSound(SoundSubtle),
		StartLiveClock(Clock12h),
		StopLiveClock(),
	}

	for _, original := range commands {
		t.Run(string(original.Type), func(t *testing.T) {
			data, err := json.Marshal(original)
			require.NoError(t, err)

			parsed, err := Parse(data)
			require.NoError(t, err)
			assert.Equal(t, original.Type, parsed.Type)
			assert.Equal(t, []byte(original.Payload), []byte(parsed.Payload))
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"not json", `{"type":`, ErrInvalidPayload},
		{"unknown type", `{"type":"REBOOT"}`, ErrUnknownType},
		{"bad theme", `{"type":"SET_THEME","payload":"neon"}`, ErrInvalidPayload},
		{"bad sound", `{"type":"SET_SOUND","payload":"mechanical"}`, ErrInvalidPayload},
		{"missing message", `{"type":"UPDATE_MESSAGE"}`, ErrInvalidPayload},
		{"empty board", `{"type":"UPDATE_BOARD","payload":[]}`, ErrInvalidPayload},
		{"board wrong shape", `{"type":"UPDATE_BOARD","payload":"abc"}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccessorWrongType(t *testing.T) {
	_, err := SetTheme(ThemeDark).Sound()
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestClockVariantDefault(t *testing.T) {
	variant, err := Command{Type: TypeStartLiveClock}.ClockVariant()
	require.NoError(t, err)
	assert.Equal(t, DefaultClockVariant, variant)
}

func TestBoardRoundTrip(t *testing.T) {
	text := PadMessage("ROW ONE")
	board := BoardFromString(text)

	require.Len(t, board, Rows)
	for _, row := range board {
		require.Len(t, row, Cols)
	}
	assert.Equal(t, text, board.String())
}

func TestNormalize(t *testing.T) {
	ragged := Board{
		{{Char: "A"}, {Char: ""}},
	}

	normalized := ragged.Normalize()

	require.Len(t, normalized, Rows)
	assert.Equal(t, "A", normalized[0][0].Char)
	assert.Equal(t, " ", normalized[0][1].Char)
	assert.Equal(t, " ", normalized[Rows-1][Cols-1].Char)
}

func TestClockBoard(t *testing.T) {
	at := time.Date(2026, time.March, 7, 14, 5, 9, 0, time.UTC)

	text := ClockBoard(at, Clock24h).String()
	rows := make([]string, Rows)
	for r := range rows {
		rows[r] = strings.TrimSpace(text[r*Cols : (r+1)*Cols])
	}

	assert.Equal(t, []string{"", "14:05", ":09", "SATURDAY", "MARCH 7", "2026"}, rows)

	twelve := ClockBoard(at, Clock12h).String()
	assert.Equal(t, "2:05 PM", strings.TrimSpace(twelve[Cols:2*Cols]))
}

func TestIsColorCode(t *testing.T) {
	assert.True(t, IsColorCode("[V]"))
	assert.False(t, IsColorCode("V"))
}

func TestParseBoardText(t *testing.T) {
	board := ParseBoardText("hi [r]there\r\n\n[G][G]" + strings.Repeat("X", 40) + "\n4\n5\n6\n7")

	require.Len(t, board, Rows)
	assert.Equal(t, Cell{Char: "H"}, board[0][0])
	assert.Equal(t, Cell{Char: " ", Color: "[R]"}, board[0][3])
	assert.Equal(t, Cell{Char: "T"}, board[0][4])
	assert.Equal(t, strings.Repeat(" ", Cols), Board{board[1]}.String())
	assert.Equal(t, "[G]", board[2][1].Color)
	assert.Equal(t, "X", board[2][Cols-1].Char)
	assert.Len(t, board[2], Cols)
	assert.Equal(t, "6", board[5][0].Char)
}
