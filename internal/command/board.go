package command

import "strings"

// Board dimensions of the split-flap display.
const (
	Rows      = 6
	Cols      = 22
	TotalBits = Rows * Cols
)

// Characters is the flap set a display can show.
const Characters = " ABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890!@#$()[]+-&;:'\",.?/"

// Colour tags. They follow the characters on the flap drum.
var ColorCodes = []string{"[R]", "[O]", "[Y]", "[G]", "[B]", "[V]", "[W]", "[P]"}

// Cell is one flap position.
type Cell struct {
	Char  string `json:"char"`
	Color string `json:"color,omitempty"`
}

// Board is a row-major grid of cells.
type Board [][]Cell

// EmptyBoard returns a Rows x Cols board of blanks.
func EmptyBoard() Board {
	board := make(Board, Rows)
	for r := range board {
		board[r] = make([]Cell, Cols)
		for c := range board[r] {
			board[r][c] = Cell{Char: " "}
		}
	}
	return board
}

// PadMessage pads with spaces, or truncates, to exactly TotalBits runes.
func PadMessage(text string) string {
	runes := []rune(text)
	if len(runes) >= TotalBits {
		return string(runes[:TotalBits])
	}
	return text + strings.Repeat(" ", TotalBits-len(runes))
}

// BoardFromString lays text out row by row.
func BoardFromString(text string) Board {
	runes := []rune(PadMessage(text))
	board := EmptyBoard()
	for i, r := range runes {
		board[i/Cols][i%Cols] = Cell{Char: string(r)}
	}
	return board
}

// String flattens the board back to its characters, ignoring colours.
func (b Board) String() string {
	var sb strings.Builder
	for _, row := range b {
		for _, cell := range row {
			if cell.Char == "" {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteString(cell.Char)
		}
	}
	return sb.String()
}

// Normalize returns a Rows x Cols copy. Missing cells become blanks and
// extra rows or columns are dropped.
func (b Board) Normalize() Board {
	out := EmptyBoard()
	for r := 0; r < Rows && r < len(b); r++ {
		for c := 0; c < Cols && c < len(b[r]); c++ {
			cell := b[r][c]
			if cell.Char == "" {
				cell.Char = " "
			}
			out[r][c] = cell
		}
	}
	return out
}

// IsColorCode reports whether tag is one of ColorCodes.
func IsColorCode(tag string) bool {
	for _, code := range ColorCodes {
		if code == tag {
			return true
		}
	}
	return false
}

// ParseBoardText reads a board drawn as plain text, one line per row.
// Colour tags such as [R] fill a single cell with that colour. Text is
// uppercased; anything beyond Rows x Cols is dropped.
func ParseBoardText(text string) Board {
	board := EmptyBoard()
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for r := 0; r < Rows && r < len(lines); r++ {
		line := []rune(strings.ToUpper(lines[r]))
		for i, c := 0, 0; i < len(line) && c < Cols; c++ {
			if i+3 <= len(line) && IsColorCode(string(line[i:i+3])) {
				board[r][c] = Cell{Char: " ", Color: string(line[i : i+3])}
				i += 3
				continue
			}
			board[r][c] = Cell{Char: string(line[i])}
			i++
		}
	}
	return board
}
