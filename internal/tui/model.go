package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wifiwatch/internal/capture"
	"wifiwatch/internal/channels"
	"wifiwatch/internal/console"
	"wifiwatch/internal/models"
)

const refreshInterval = 250 * time.Millisecond

type TickMsg time.Time

// changedMsg is sent when the console reports a state change.
type changedMsg struct{}

// doneMsg carries the result of a command that ran off the UI goroutine.
type doneMsg struct {
	op     string
	err    error
	detail string
}

type Model struct {
	console *console.Console

	networks table.Model
	packets  table.Model

	nets     []models.NetworkRecord
	reports  []channels.Report
	best     channels.Report
	selected string
	session  capture.Session
	page     capture.Page
	summary  capture.Summary
	alerts   []capture.Alert
	scanning bool
	err      error
	notice   string
}

func NewModel(c *console.Console) Model {
	networks := table.New(
		table.WithColumns([]table.Column{
			{Title: "SSID", Width: 22},
			{Title: "BSSID", Width: 18},
			{Title: "Ch", Width: 4},
			{Title: "Signal", Width: 7},
			{Title: "Security", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	packets := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 12},
			{Title: "Source", Width: 22},
			{Title: "Destination", Width: 22},
			{Title: "Protocol", Width: 12},
			{Title: "Len", Width: 6},
		}),
		table.WithFocused(false),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	networks.SetStyles(s)

	ps := table.DefaultStyles()
	ps.Header = s.Header
	ps.Selected = lipgloss.NewStyle()
	packets.SetStyles(ps)

	m := Model{console: c, networks: networks, packets: packets}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForChange(m.console.Changes()), listInterfacesCmd(m.console))
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

// run executes fn off the UI goroutine and reports its error as a doneMsg.
func run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{op: op, err: fn(context.Background())}
	}
}

func listInterfacesCmd(c *console.Console) tea.Cmd {
	return run("interfaces", func(ctx context.Context) error {
		_, err := c.ListInterfaces(ctx)
		return err
	})
}
