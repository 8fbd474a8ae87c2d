package ui

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/flipboard/internal/broker"
)

// StatsView renders a broker snapshot as a two-column table.
func StatsView(domain string, s broker.Snapshot) string {
	t := table.NewWriter()
	t.SetTitle("Broker " + domain)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgYellow, text.Bold}

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Rooms", s.Rooms},
		{"Hosts", s.Hosts},
		{"Remotes", s.Remotes},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Commands relayed", s.Relayed},
		{"Commands dropped", s.Dropped},
		{"Registrations rejected", s.Rejected},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return t.Render()
}
