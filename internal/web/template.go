package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/brew-controller/internal/sensor"
	"github.com/sweeney/brew-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"temp": func(v float64) string {
		if v == sensor.Sentinel {
			return "n/a"
		}
		return fmt.Sprintf("%.1f °C", v)
	},
	"duty": func(v float64) string {
		return fmt.Sprintf("%g%%", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Brew Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.simulated { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Brew Controller</h1>

<h2>Hardware</h2>
<table>
<tr><th>Backend</th><td class="{{.Backend}}">{{.Backend}}</td></tr>
<tr><th>Driver</th><td>{{.Driver}}</td></tr>
<tr><th>Initialized</th><td>{{if .Initialized}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Actuators</h2>
<table>
{{range .Actuators}}<tr><th>{{.Kind}} {{.Name}}</th><td class="{{if .On}}on{{else}}off{{end}}">{{if .On}}ON{{else}}OFF{{end}} {{duty .Duty}}</td></tr>
{{else}}<tr><td>no commands yet</td></tr>
{{end}}</table>

<h2>Temperatures</h2>
<table>
{{with .LastReading}}<tr><th>BK</th><td>{{temp .BK}}</td></tr>
<tr><th>MLT</th><td>{{temp .MLT}}</td></tr>
<tr><th>HLT</th><td>{{temp .HLT}}</td></tr>
<tr><th>At</th><td>{{.Timestamp}}</td></tr>
{{else}}<tr><td>no readings logged</td></tr>
{{end}}</table>

<h2>Session</h2>
<table>
<tr><th>File</th><td>{{if .SessionPath}}{{.SessionPath}}{{else}}none{{end}}</td></tr>
<tr><th>Readings</th><td>{{.Readings}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Config</th><td>{{.Config.ConfigPath}}</td></tr>
<tr><th>Log dir</th><td>{{.Config.LogDir}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/api/status">JSON</a> · <a href="/api/session/history">History</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
