package serialmux

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is what the alert peripheral firmware listens at.
const DefaultBaudRate = 9600

// SerialPorter is the part of a serial port the mux needs.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOptions are the line settings for a real port. Zero fields mean
// 9600 baud, 8N1.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parityNames = map[string]string{
	"N": "N", "NONE": "N",
	"E": "E", "EVEN": "E",
	"O": "O", "ODD": "O",
}

// ParseFraming reads the usual "8N1" shorthand into data bits, parity and
// stop bits. The baud rate is left unset.
func ParseFraming(s string) (PortOptions, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return PortOptions{}, fmt.Errorf("invalid framing %q: want e.g. 8N1", s)
	}
	data, err1 := strconv.Atoi(s[:1])
	stop, err2 := strconv.Atoi(s[2:])
	if err1 != nil || err2 != nil {
		return PortOptions{}, fmt.Errorf("invalid framing %q: want e.g. 8N1", s)
	}
	return PortOptions{DataBits: data, Parity: s[1:2], StopBits: stop}.Normalize()
}

// Normalize validates the options and fills in defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	p := strings.ToUpper(strings.TrimSpace(o.Parity))
	if p == "" {
		p = "N"
	}
	norm, ok := parityNames[p]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	o.Parity = norm
	return o, nil
}

// String renders the options as "9600 8N1".
func (o PortOptions) String() string {
	n, err := o.Normalize()
	if err != nil {
		return fmt.Sprintf("invalid(%d %d%s%d)", o.BaudRate, o.DataBits, o.Parity, o.StopBits)
	}
	return fmt.Sprintf("%d %d%s%d", n.BaudRate, n.DataBits, n.Parity, n.StopBits)
}

// SerialMode converts the options for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: n.BaudRate, DataBits: n.DataBits, StopBits: serial.OneStopBit}
	if n.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch n.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// NewRealSerialMux opens the serial port at path and wraps it in a mux.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewSerialMux[serial.Port](port), nil
}
