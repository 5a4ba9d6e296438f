package serialmux

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/drowsiness.report/internal/peripheral"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// consoleCommands are offered as buttons on the send-command page.
func consoleCommands() []string {
	cmds := []string{peripheral.Init().String()}
	for l := 0; l <= peripheral.MaxAlertLevel; l++ {
		cmds = append(cmds, peripheral.Alert(l).String())
	}
	return append(cmds, peripheral.MeasurementRequest().String(), peripheral.Shutdown().String())
}

// attachAdminRoutes mounts the debug console shared by every mux: a page to
// push protocol commands by hand and a live tail of the device's replies.
func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the alert peripheral", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := sendCommandTemplate.Execute(&buf, map[string]any{"Commands": consoleCommands()}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		buf.WriteTo(w)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		line := strings.TrimSpace(r.FormValue("command"))
		if line == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		cmd, err := peripheral.Parse(line)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(cmd.String()); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to serial port", cmd.String())
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, lines := s.Subscribe()
		defer s.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		b, err := adminTemplateFS.ReadFile("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(b)
	})
}
