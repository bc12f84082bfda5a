package tui

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"wifiwatch/internal/capture"
	"wifiwatch/internal/models"
)

const (
	topTalkers  = 5
	shownAlerts = 4
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			if m.scanning {
				m.notice = "scan already running"
				return m, nil
			}
			m.scanning = true
			m.notice = "scanning..."
			return m, run("scan", m.console.BeginScan)
		case "enter":
			row := m.networks.Cursor()
			if row < 0 || row >= len(m.nets) {
				return m, nil
			}
			bssid := m.nets[row].BSSID
			return m, run("select", func(ctx context.Context) error { return m.console.SelectNetwork(ctx, bssid) })
		case "esc":
			return m, run("select", func(ctx context.Context) error { return m.console.SelectNetwork(ctx, "") })
		case "c":
			m.notice = "starting capture..."
			return m, run("capture", func(ctx context.Context) error { return m.console.StartCapture(ctx, "") })
		case "x":
			return m, run("stop", m.console.StopCapture)
		case "n":
			m.console.NextPage()
			m.refresh()
			return m, nil
		case "p":
			m.console.PrevPage()
			m.refresh()
			return m, nil
		case "tab":
			return m, run("interface", m.console.CycleInterface)
		case "r":
			return m, func() tea.Msg {
				path, err := m.console.WriteReport(context.Background())
				return doneMsg{op: "report", err: err, detail: path}
			}
		}

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.console.Changes())

	case doneMsg:
		if msg.op == "scan" {
			m.scanning = false
		}
		m.notice = ""
		if msg.err == nil {
			m.notice = doneNotice(msg, m.console.Interface())
		}
		m.refresh()
		return m, nil
	}

	m.networks, cmd = m.networks.Update(msg)
	return m, cmd
}

func doneNotice(msg doneMsg, iface string) string {
	switch msg.op {
	case "scan":
		return "scan complete"
	case "capture":
		return "capturing on " + iface
	case "stop":
		return "capture stopped"
	case "interface":
		return "capture interface: " + iface
	case "report":
		return "report written to " + msg.detail
	default:
		return ""
	}
}

// refresh pulls the current console state into the model.
func (m *Model) refresh() {
	c := m.console
	m.nets = c.Networks()
	m.reports = c.Channels()
	m.best = c.BestChannel()
	m.selected = c.Selected()
	m.session = c.CaptureStatus()
	m.page = c.Page()
	m.summary = c.Summary(topTalkers)
	m.alerts = c.Alerts(shownAlerts)
	m.err = c.LastError()
	if c.Scanning() {
		m.scanning = true
	}

	rows := make([]table.Row, len(m.nets))
	for i, n := range m.nets {
		rows[i] = networkRow(n, n.BSSID == m.selected)
	}
	m.networks.SetRows(rows)

	prows := make([]table.Row, len(m.page.Records))
	for i, p := range m.page.Records {
		prows[i] = packetRow(p)
	}
	m.packets.SetRows(prows)
}

func networkRow(n models.NetworkRecord, selected bool) table.Row {
	name := n.SSID
	if selected {
		name = "* " + name
	}
	ch := "-"
	if n.HasChannel() {
		ch = strconv.Itoa(n.Channel)
	}
	return table.Row{name, n.BSSID, ch, fmt.Sprintf("%d%%", n.SignalQuality), string(n.Security)}
}

func packetRow(p models.PacketRecord) table.Row {
	return table.Row{
		p.Timestamp.Format("15:04:05.000"),
		endpoint(p.SrcIP, p.SrcMAC, p.SrcPort),
		endpoint(p.DstIP, p.DstMAC, p.DstPort),
		p.Protocol,
		strconv.Itoa(p.Length),
	}
}

func endpoint(ip, mac string, port int) string {
	if ip == "" {
		return mac
	}
	if port == 0 {
		return ip
	}
	return net.JoinHostPort(ip, capture.ServiceName(port))
}
