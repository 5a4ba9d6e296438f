package peripheral

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reply line prefixes written by the peripheral firmware.
const (
	ReplyReading = "BP"
	ReplyAck     = "ACK"
	ReplyError   = "ERR"
	ReplyReady   = "READY"
)

var ErrMalformedReading = errors.New("malformed measurement reading")

// Reading is one blood-pressure measurement reported in answer to
// BP_REQUEST, e.g. "BP:124/82" or "BP:124/82,HR:71". Pulse is 0 when the
// module did not report it.
type Reading struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
	Pulse     int `json:"pulse,omitempty"`
}

func (r Reading) String() string {
	s := fmt.Sprintf("%s:%d/%d", ReplyReading, r.Systolic, r.Diastolic)
	if r.Pulse > 0 {
		s += fmt.Sprintf(",HR:%d", r.Pulse)
	}
	return s
}

// ParseReading decodes a BP reply line.
func ParseReading(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	body, ok := strings.CutPrefix(line, ReplyReading+":")
	if !ok {
		return Reading{}, fmt.Errorf("%w: %q", ErrMalformedReading, line)
	}

	bp, rest, _ := strings.Cut(body, ",")
	sys, dia, ok := strings.Cut(bp, "/")
	if !ok {
		return Reading{}, fmt.Errorf("%w: %q", ErrMalformedReading, line)
	}

	var r Reading
	var err error
	if r.Systolic, err = strconv.Atoi(strings.TrimSpace(sys)); err != nil {
		return Reading{}, fmt.Errorf("%w: systolic %q", ErrMalformedReading, sys)
	}
	if r.Diastolic, err = strconv.Atoi(strings.TrimSpace(dia)); err != nil {
		return Reading{}, fmt.Errorf("%w: diastolic %q", ErrMalformedReading, dia)
	}
	if r.Systolic <= 0 || r.Diastolic <= 0 || r.Diastolic > r.Systolic {
		return Reading{}, fmt.Errorf("%w: implausible %d/%d", ErrMalformedReading, r.Systolic, r.Diastolic)
	}

	if rest != "" {
		hr, ok := strings.CutPrefix(strings.TrimSpace(rest), "HR:")
		if !ok {
			return Reading{}, fmt.Errorf("%w: unexpected field %q", ErrMalformedReading, rest)
		}
		if r.Pulse, err = strconv.Atoi(hr); err != nil || r.Pulse <= 0 {
			return Reading{}, fmt.Errorf("%w: pulse %q", ErrMalformedReading, hr)
		}
	}
	return r, nil
}
