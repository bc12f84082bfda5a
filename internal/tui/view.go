package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"wifiwatch/internal/capture"
	"wifiwatch/internal/channels"
	"wifiwatch/internal/reporting"
)

const barWidth = 20

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2C94C"))

	qualityColors = map[channels.Quality]lipgloss.Color{
		channels.QualityExcellent: lipgloss.Color("#04B575"),
		channels.QualityGood:      lipgloss.Color("#A8CC8C"),
		channels.QualityFair:      lipgloss.Color("#F2C94C"),
		channels.QualityPoor:      lipgloss.Color("#FF5F87"),
	}
)

func (m Model) View() string {
	headerText := fmt.Sprintf("WiFiWatch - Capture: %s [%s]", orNone(m.session.Interface), m.session.Status)
	if m.scanning {
		headerText += " [Scanning]"
	}
	title := titleStyle.Render(headerText)

	netTitle := fmt.Sprintf("Networks (%d)", len(m.nets))
	if m.selected != "" {
		netTitle += "  channel view: " + m.selected
	}
	netBox := infoStyle.Render(netTitle + "\n" + m.networks.View())
	chanBox := infoStyle.Render(renderChannels(m.reports, m.best))

	pktTitle := fmt.Sprintf("Packets  page %d/%d  (%d buffered)", m.page.Number, m.page.Total, m.session.Packets)
	pktBox := infoStyle.Render(pktTitle + "\n" + m.packets.View())
	sumBox := infoStyle.Render(renderSummary(m.summary))
	alertBox := infoStyle.Render(renderAlerts(m.alerts))

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, netBox, chanBox)
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, pktBox, sumBox)
	body := lipgloss.JoinVertical(lipgloss.Left, title, row1, row2, alertBox)

	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render("Error: " + m.err.Error())
	case m.notice != "":
		status = noticeStyle.Render(m.notice)
	}

	help := helpStyle.Render("s scan • ↑/↓ enter select • esc all • c capture • x stop • n/p page • tab interface • r report • q quit")
	return body + "\n" + status + "\n" + help
}

func renderChannels(reports []channels.Report, best channels.Report) string {
	var b strings.Builder
	b.WriteString("Channel occupancy\n")
	for _, r := range reports {
		filled := int(r.Occupancy*barWidth + 0.5)
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		bar = lipgloss.NewStyle().Foreground(qualityColors[r.Quality]).Render(bar)
		fmt.Fprintf(&b, "%2d %s %3.0f%% %s\n", r.Channel, bar, r.Occupancy*100, r.Quality)
	}
	fmt.Fprintf(&b, "Best: %d (%s)", best.Channel, best.Recommendation)
	return b.String()
}

func renderSummary(s capture.Summary) string {
	if s.Packets == 0 {
		return "Protocols:\nWaiting for data..."
	}
	lines := []string{fmt.Sprintf("%d packets, %s", s.Packets, formatBytes(s.Bytes)), "", "Protocols:"}
	for i, p := range s.Protocols {
		if i == 5 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %d", p.Protocol, p.Count))
	}
	lines = append(lines, "", "Top Talkers:")
	for _, t := range s.TopTalkers {
		lines = append(lines, fmt.Sprintf("%s %s", t.Addr, formatBytes(t.Bytes)))
	}
	return strings.Join(lines, "\n")
}

func renderAlerts(alerts []capture.Alert) string {
	if len(alerts) == 0 {
		return "Alerts: none"
	}
	lines := []string{"Alerts:"}
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		lines = append(lines, alertStyle.Render(fmt.Sprintf("[%s] %s", a.Timestamp.Format("15:04:05"), a.Message)))
	}
	return strings.Join(lines, "\n")
}

func formatBytes(n int) string {
	return reporting.FormatBytes(int64(n))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
