package reporting

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"wifiwatch/internal/capture"
	"wifiwatch/internal/channels"
	"wifiwatch/internal/models"
)

// Session is everything a report shows about one console session.
type Session struct {
	Generated time.Time
	Interface string
	Networks  []models.NetworkRecord
	Channels  []channels.Report
	Best      channels.Report
	Capture   capture.Summary
	Alerts    []capture.Alert
}

// GenerateSessionReport writes an HTML report of s into dir and returns the
// file path. SSIDs come off the air, so everything is escaped.
func GenerateSessionReport(dir string, s Session) (string, error) {
	if s.Generated.IsZero() {
		s.Generated = time.Now()
	}
	if dir == "" {
		dir = "."
	}
	filename := filepath.Join(dir, fmt.Sprintf("wifiwatch_report_%s.html", s.Generated.Format("20060102_150405")))

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := reportTemplate.Execute(file, s); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return filename, nil
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"bytes":   func(n int) string { return FormatBytes(int64(n)) },
	"percent": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"when":    func(t time.Time) string { return t.Format(time.RFC1123) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>WiFiWatch Session Report - {{when .Generated}}</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .Poor { color: #d9534f; font-weight: bold; }
    </style>
</head>
<body>
    <h1>WiFiWatch Session Report</h1>
    <div class="summary">
        <p><strong>Date:</strong> {{when .Generated}}</p>
        <p><strong>Capture interface:</strong> {{.Interface}}</p>
        <p><strong>Best channel:</strong> {{.Best.Channel}} ({{.Best.Recommendation}})</p>
        <p><strong>Packets captured:</strong> {{.Capture.Packets}} ({{bytes .Capture.Bytes}})</p>
    </div>

    <h2>Networks</h2>
    <table>
        <thead><tr><th>SSID</th><th>BSSID</th><th>Channel</th><th>Signal</th><th>Security</th><th>Beacons</th></tr></thead>
        <tbody>
{{- range .Networks}}
            <tr><td>{{.SSID}}</td><td>{{.BSSID}}</td><td>{{if .HasChannel}}{{.Channel}}{{else}}-{{end}}</td><td>{{.SignalQuality}}%</td><td>{{.Security}}</td><td>{{.BeaconCount}}</td></tr>
{{- else}}
            <tr><td colspan="6">No networks discovered.</td></tr>
{{- end}}
        </tbody>
    </table>

    <h2>Channel Occupancy</h2>
    <table>
        <thead><tr><th>Channel</th><th>Occupancy</th><th>Quality</th><th>Recommendation</th></tr></thead>
        <tbody>
{{- range .Channels}}
            <tr><td>{{.Channel}}</td><td>{{percent .Occupancy}}</td><td class="{{.Quality}}">{{.Quality}}</td><td>{{.Recommendation}}</td></tr>
{{- end}}
        </tbody>
    </table>

    <h2>Protocols</h2>
    <table>
        <thead><tr><th>Protocol</th><th>Packets</th></tr></thead>
        <tbody>
{{- range .Capture.Protocols}}
            <tr><td>{{.Protocol}}</td><td>{{.Count}}</td></tr>
{{- else}}
            <tr><td colspan="2">No packets captured.</td></tr>
{{- end}}
        </tbody>
    </table>

    <h2>Top Talkers</h2>
    <table>
        <thead><tr><th>Address</th><th>Data Transferred</th></tr></thead>
        <tbody>
{{- range .Capture.TopTalkers}}
            <tr><td>{{.Addr}}</td><td>{{bytes .Bytes}}</td></tr>
{{- end}}
        </tbody>
    </table>

    <h2>Alerts</h2>
    <table>
        <thead><tr><th>Time</th><th>Type</th><th>Source</th><th>Message</th></tr></thead>
        <tbody>
{{- range .Alerts}}
            <tr><td>{{when .Timestamp}}</td><td>{{.Kind}}</td><td>{{.Source}}</td><td>{{.Message}}</td></tr>
{{- else}}
            <tr><td colspan="4">No suspicious traffic seen.</td></tr>
{{- end}}
        </tbody>
    </table>
</body>
</html>
`))
