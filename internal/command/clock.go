package command

import (
	"fmt"
	"strings"
	"time"
)

// Clock variants understood by ClockBoard.
const (
	Clock24h = "24h"
	Clock12h = "12h"
)

// ClockBoard renders t as a centered clock:
// blank, HH:MM, :SS, weekday, MONTH D, year.
// Unknown variants fall back to the 24 hour layout.
func ClockBoard(t time.Time, variant string) Board {
	hhmm := fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
	if variant == Clock12h {
		hour := t.Hour() % 12
		if hour == 0 {
			hour = 12
		}
		suffix := "AM"
		if t.Hour() >= 12 {
			suffix = "PM"
		}
		hhmm = fmt.Sprintf("%d:%02d %s", hour, t.Minute(), suffix)
	}

	lines := []string{
		"",
		hhmm,
		fmt.Sprintf(":%02d", t.Second()),
		strings.ToUpper(t.Weekday().String()),
		fmt.Sprintf("%s %d", strings.ToUpper(t.Month().String()), t.Day()),
		fmt.Sprintf("%d", t.Year()),
	}

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(centerLine(line))
	}
	return BoardFromString(sb.String())
}

func centerLine(text string) string {
	if len(text) >= Cols {
		return text[:Cols]
	}
	left := (Cols - len(text)) / 2
	return strings.Repeat(" ", left) + text + strings.Repeat(" ", Cols-left-len(text))
}
