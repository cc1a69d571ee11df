package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/tent-controller/internal/status"
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
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"modeOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"local": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02 15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Grow Tent</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Grow Tent</h1>

<h2>Devices</h2>
<table>
{{with .Devices.Light}}<tr><th>Light</th>{{if .Available}}<td id="light" class="{{if .Value.On}}on{{else}}off{{end}}">{{onOff .Value.On}}{{if .Value.Brightness}} ({{.Value.Brightness}}%){{end}}</td>{{else}}<td id="light" class="unknown">unavailable: {{.Reason}}</td>{{end}}</tr>{{end}}
{{with .Devices.Humidifier}}<tr><th>Humidifier</th>{{if .Available}}<td class="{{if .Value.Working}}on{{else}}off{{end}}">{{if .Value.Working}}misting{{else}}idle{{end}}{{if .Value.TankEmpty}}, tank empty{{end}}</td>{{else}}<td class="unknown">unavailable: {{.Reason}}</td>{{end}}</tr>
{{if and .Available .Value.HasHumidity}}<tr><th>Humidity</th><td>{{printf "%.0f" .Value.Humidity}}%{{if .Value.HasTarget}} (target {{printf "%.0f" .Value.Target}}%){{end}}</td></tr>{{end}}{{end}}
{{with .Devices.Fan}}<tr><th>Fan</th>{{if .Available}}<td>{{.Value.Speed}}% ({{.Value.RPM}} rpm)</td>{{else}}<td class="unknown">unavailable: {{.Reason}}</td>{{end}}</tr>{{end}}
{{with .Devices.Heater}}<tr><th>Heater</th>{{if .Available}}<td class="{{if .Value.On}}on{{else}}off{{end}}">{{onOff .Value.On}}</td>{{else}}<td class="unknown">unavailable: {{.Reason}}</td>{{end}}</tr>{{end}}
{{with .Devices.Temperature}}{{if .Available}}{{range .Value.Sensors}}<tr><th>{{if .Name}}{{.Name}}{{else}}{{.Address}}{{end}}</th><td>{{if .Valid}}{{printf "%.1f" .Celsius}} °C{{else}}<span class="unknown">invalid</span>{{end}}</td></tr>
{{end}}{{else}}<tr><th>Temperature</th><td class="unknown">unavailable: {{.Reason}}</td></tr>{{end}}{{end}}
{{with .Devices.Meter}}<tr><th>Power</th>{{if .Available}}<td>{{printf "%.0f" .Value.PowerW}} W</td>{{else}}<td class="unknown">unavailable: {{.Reason}}</td>{{end}}</tr>{{end}}
</table>

<h2>Control</h2>
<table>
<tr><th>Fan mode</th><td id="fan-mode">{{modeOrUnknown (printf "%s" .Control.FanMode)}}</td></tr>
<tr><th>Heater check</th><td>{{local .Control.HeaterLastCheck}}{{if .Control.HeaterSkipped}} (skipped: {{.Control.HeaterSkipped}}){{end}}</td></tr>
<tr><th>Heater</th><td>{{if .Settings.Heater.Enabled}}night {{printf "%.1f" .Settings.Heater.NightTemp}} °C{{else}}disabled{{end}}</td></tr>
<tr><th>Light schedule</th><td>{{if .Settings.Light.Enabled}}{{.Settings.Light.OnTime}} to {{.Settings.Light.OffTime}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Humidifier runtime</h2>
<table>
<tr><th>24 h</th><td>{{.Runtime.Day}}%</td></tr>
<tr><th>7 days</th><td>{{.Runtime.Week}}%</td></tr>
<tr><th>All time</th><td>{{.Runtime.AllTime}}%</td></tr>
</table>

<h2>Energy</h2>
<table>
<tr><th>Today</th><td>{{printf "%.3f" .Energy.Today.KWh}} kWh ({{.Config.Currency}}{{printf "%.2f" .Energy.Today.Cost}})</td></tr>
<tr><th>This month</th><td>{{printf "%.3f" .Energy.Month.KWh}} kWh ({{.Config.Currency}}{{printf "%.2f" .Energy.Month.Cost}})</td></tr>
<tr><th>This year</th><td>{{printf "%.3f" .Energy.Year.KWh}} kWh ({{.Config.Currency}}{{printf "%.2f" .Energy.Year.Cost}})</td></tr>
</table>

{{if .Notifications}}<h2>Notifications</h2>
<table>
{{range .Notifications}}<tr><th>{{local .Time}}</th><td>{{.Title}}: {{.Body}}</td></tr>
{{end}}</table>{{end}}

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/energy.json">energy</a> · <a href="/settings.json">settings</a> · <a href="/metrics">metrics</a></p>
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
