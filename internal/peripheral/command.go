// Package peripheral implements the line-oriented command protocol spoken by
// the alerting peripheral (buzzer, display and blood-pressure module) and a
// fire-and-forget notifier that delivers commands over a serial channel.
package peripheral

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command names understood by the peripheral firmware.
const (
	NameInit               = "INIT"
	NameAlert              = "ALERT"
	NameMeasurementRequest = "BP_REQUEST"
	NameShutdown           = "SHUTDOWN"
)

// MaxAlertLevel is the highest level value accepted in an ALERT command.
const MaxAlertLevel = 3

var ErrUnknownCommand = errors.New("unknown peripheral command")

// Command is a single protocol line, without the trailing newline.
type Command struct {
	Name string `json:"name"`
	// Arg is the value after the colon; empty for argument-less commands.
	Arg string `json:"arg,omitempty"`
}

// Init is sent once when the peripheral is connected.
func Init() Command { return Command{Name: NameInit} }

// Shutdown is sent once on clean shutdown.
func Shutdown() Command { return Command{Name: NameShutdown} }

// MeasurementRequest asks the peripheral to take a blood-pressure reading.
func MeasurementRequest() Command { return Command{Name: NameMeasurementRequest, Arg: "1"} }

// Alert sets the peripheral's alert level. Levels outside 0..MaxAlertLevel
// are clamped.
func Alert(level int) Command {
	if level < 0 {
		level = 0
	}
	if level > MaxAlertLevel {
		level = MaxAlertLevel
	}
	return Command{Name: NameAlert, Arg: strconv.Itoa(level)}
}

// String renders the command as it appears on the wire, minus the newline.
func (c Command) String() string {
	if c.Arg == "" {
		return c.Name
	}
	return c.Name + ":" + c.Arg
}

// Line renders the newline-terminated wire form.
func (c Command) Line() string {
	return c.String() + "\n"
}

// Parse reads one protocol line. Surrounding whitespace and the line
// terminator are ignored.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	name, arg, _ := strings.Cut(line, ":")
	switch name {
	case NameInit, NameShutdown:
		if arg != "" {
			return Command{}, fmt.Errorf("%s takes no argument, got %q", name, arg)
		}
		return Command{Name: name}, nil
	case NameAlert:
		level, err := strconv.Atoi(arg)
		if err != nil || level < 0 || level > MaxAlertLevel {
			return Command{}, fmt.Errorf("invalid alert level %q", arg)
		}
		return Alert(level), nil
	case NameMeasurementRequest:
		if arg != "1" {
			return Command{}, fmt.Errorf("invalid measurement request argument %q", arg)
		}
		return MeasurementRequest(), nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
}
