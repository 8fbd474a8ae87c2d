package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/flipboard/internal/command"
)

// RenderBoard draws board as a grid of flap tiles in the given theme. A
// cell carrying a colour tag is drawn as a solid tile of that colour.
func RenderBoard(board command.Board, theme command.Theme) string {
	p, ok := palettes[theme]
	if !ok {
		p = palettes[command.ThemeDark]
	}
	tile := lipgloss.NewStyle().
		Background(p.tile).
		Foreground(p.glyph).
		Bold(true)

	rows := make([]string, 0, len(board))
	for _, row := range board.Normalize() {
		var sb strings.Builder
		for _, cell := range row {
			sb.WriteString(renderCell(cell, tile))
		}
		rows = append(rows, sb.String())
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.frame).
		Render(strings.Join(rows, "\n"))
}

func renderCell(cell command.Cell, tile lipgloss.Style) string {
	if color, ok := TagColors[cell.Color]; ok {
		return tile.Background(color).Render("  ")
	}
	char := cell.Char
	if char == "" {
		char = " "
	}
	return tile.Render(char + " ")
}
