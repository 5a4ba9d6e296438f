package landmarks

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/banshee-data/drowsiness.report/internal/monitoring"
	"github.com/banshee-data/drowsiness.report/internal/timeutil"
)

// maxLineBytes bounds one JSON frame: 68 points per face with generous
// float formatting leaves room for a dozen faces.
const maxLineBytes = 1 << 20

// ErrLineTooLong marks an input line longer than maxLineBytes.
var ErrLineTooLong = errors.New("line exceeds 1 MiB")

// StreamSource reads newline-delimited JSON frames from a reader.
type StreamSource struct {
	name        string
	r           io.Reader
	clock       timeutil.Clock
	logInterval time.Duration
	stats       Stats
}

// StreamSourceConfig configures a StreamSource.
type StreamSourceConfig struct {
	// Name labels log lines, e.g. "stdin" or a file path.
	Name        string
	Reader      io.Reader
	Clock       timeutil.Clock
	LogInterval time.Duration
}

func NewStreamSource(cfg StreamSourceConfig) *StreamSource {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	name := cfg.Name
	if name == "" {
		name = "stream"
	}
	return &StreamSource{
		name:        name,
		r:           cfg.Reader,
		clock:       clock,
		logInterval: cfg.LogInterval,
	}
}

// Stats returns the live counters.
func (s *StreamSource) Stats() *Stats { return &s.stats }

// Run reads until EOF, returning nil, or until ctx is cancelled. Malformed
// and oversized lines are logged and skipped. Frames without a timestamp are
// stamped with the time they were read.
func (s *StreamSource) Run(ctx context.Context, out chan<- Frame) error {
	statsCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go logStatsEvery(statsCtx, s.name, &s.stats, s.logInterval)

	rd := bufio.NewReaderSize(s.r, maxLineBytes)

	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := rd.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			lineNo++
			n, derr := discardLine(rd)
			s.stats.addMalformed(len(raw) + n)
			monitoring.Logf("%s:%d: %v (%d bytes)", s.name, lineNo, ErrLineTooLong, len(raw)+n)
			if derr == io.EOF {
				return nil
			}
			if derr != nil {
				return derr
			}
			continue
		}
		if err != nil && err != io.EOF {
			return err
		}
		if len(raw) > 0 {
			lineNo++
			if derr := s.handleLine(ctx, out, lineNo, raw); derr != nil {
				return derr
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

// handleLine decodes one line and delivers it. Only a cancelled delivery is
// returned as an error.
func (s *StreamSource) handleLine(ctx context.Context, out chan<- Frame, lineNo int, raw []byte) error {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return nil
	}
	frame, err := DecodeFrame(line)
	if err != nil {
		s.stats.addMalformed(len(line))
		monitoring.Logf("%s:%d: %v", s.name, lineNo, err)
		return nil
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = s.clock.Now()
	}
	s.stats.addFrame(len(line))
	return deliver(ctx, out, frame)
}

// discardLine consumes the remainder of an oversized line, including its
// newline, and reports how many bytes were dropped.
func discardLine(rd *bufio.Reader) (int, error) {
	n := 0
	for {
		b, err := rd.ReadSlice('\n')
		n += len(b)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return n, err
		}
	}
}
