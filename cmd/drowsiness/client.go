package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"

	"github.com/banshee-data/drowsiness.report/internal/alertness"
	"github.com/banshee-data/drowsiness.report/internal/httputil"
	"github.com/banshee-data/drowsiness.report/internal/peripheral"
	"github.com/banshee-data/drowsiness.report/internal/pipeline"
)

// runClient implements the status, reset and send subcommands against a
// running monitor.
func runClient(cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	server := fs.String("server", "http://localhost:8080", "Base URL of the running monitor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := httputil.NewAPIClient(*server, nil)

	switch cmd {
	case "status":
		var resp struct {
			Session  alertness.Snapshot        `json:"session"`
			Pipeline pipeline.RunnerStats      `json:"pipeline"`
			Notifier *peripheral.NotifierStats `json:"notifier"`
		}
		if err := c.GetJSON("/api/stats", &resp); err != nil {
			return err
		}
		printSummary(out, resp.Session, resp.Pipeline)
		if resp.Notifier != nil {
			fmt.Fprintf(out, "  commands sent:      %d (failed %d, dropped %d)\n",
				resp.Notifier.Sent, resp.Notifier.Failed, resp.Notifier.Dropped)
		}
		return nil

	case "reset":
		var resp struct {
			Previous alertness.Snapshot `json:"previous"`
			Current  alertness.Snapshot `json:"current"`
		}
		if err := c.PostForm("/api/stats/reset", nil, &resp); err != nil {
			return err
		}
		printSummary(out, resp.Previous, pipeline.RunnerStats{})
		fmt.Fprintf(out, "new session %s\n", resp.Current.SessionID)
		return nil

	case "send":
		if fs.NArg() != 1 {
			return errors.New("usage: drowsiness send [-server URL] COMMAND")
		}
		parsed, err := peripheral.Parse(fs.Arg(0))
		if err != nil {
			return err
		}
		if err := c.PostForm("/api/command", url.Values{"command": {parsed.String()}}, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "sent %s\n", parsed)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}
