// Package scaffold generates starter solo.toml files tuned to common service
// shapes: a web server that logs its listen line, a background worker with no
// port, a database with a slow startup.
package scaffold

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// Type selects the service shape a generated config is tuned for.
type Type string

const (
	TypeWeb        Type = "web"
	TypeWebapp     Type = "webapp"
	TypeAPI        Type = "api"
	TypeService    Type = "service"
	TypeWorker     Type = "worker"
	TypeBackground Type = "background"
	TypeDatabase   Type = "database"
	TypeDB         Type = "db"
	TypeSimple     Type = "simple"
	TypeBasic      Type = "basic"
)

// Template holds the tunable parts of a starter config before rendering.
type Template struct {
	Name           string
	Command        string
	SuccessMarker  string
	FailureMarkers []string
	MaxTicks       int // 0 keeps the default commented out
}

// Generate builds a starter template for the given service shape.
func Generate(typ Type, name, command string) (*Template, error) {
	if name == "" {
		name = "service"
	}
	if command == "" {
		command = "./bin/" + name
	}
	t := &Template{Name: name, Command: command}

	switch typ {
	case TypeWeb, TypeWebapp, TypeAPI, TypeService:
		t.SuccessMarker = "listening on"
		t.FailureMarkers = []string{"panic:", "address already in use", "EADDRINUSE"}
	case TypeWorker, TypeBackground:
		t.SuccessMarker = "started"
		t.FailureMarkers = []string{"panic:", "fatal error"}
	case TypeDatabase, TypeDB:
		t.SuccessMarker = "ready to accept connections"
		t.FailureMarkers = []string{"panic:", "FATAL", "could not bind"}
		t.MaxTicks = 60
	case TypeSimple, TypeBasic:
		t.SuccessMarker = "listening on"
		t.FailureMarkers = []string{"panic:"}
	default:
		return nil, fmt.Errorf("unknown scaffold type: %s (supported: web, api, worker, database, simple)", typ)
	}
	return t, nil
}

// Render produces the TOML text of the starter config.
func (t *Template) Render() (string, error) {
	var b strings.Builder
	if err := configTmpl.Execute(&b, t); err != nil {
		return "", err
	}
	return b.String(), nil
}

// tomlStrings renders a Go string slice as a TOML array literal.
func tomlStrings(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

var configTmpl = template.Must(template.New("solo.toml").
	Funcs(template.FuncMap{"toml": tomlStrings}).
	Parse(`[service]
name = "{{.Name}}"
command = "{{.Command}}"
# workdir = "/srv/{{.Name}}"
# env = ["PORT=3000"]
# use_os_env = true

[readiness]
success_marker = "{{.SuccessMarker}}"
failure_markers = {{toml .FailureMarkers}}
# interval = "200ms"
{{- if .MaxTicks}}
max_ticks = {{.MaxTicks}}
{{- else}}
# max_ticks = 30
{{- end}}

[stop]
# interval = "1s"
# max_attempts = 30

[restart]
# delay = "2s"

[log]
level = "info"

[history]
enabled = false
# dsn = "sqlite://{{.Name}}-history.db"

[server]
# listen = "127.0.0.1:8517"
# base_path = "/api"

# [server.tls]
# enabled = true
# dir = "tls"
# auto_generate = true
`))
