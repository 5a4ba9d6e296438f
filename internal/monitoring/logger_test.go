package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	Logf("level %s -> %s", "NORMAL", "WARNING")
	if len(lines) != 1 || lines[0] != "level NORMAL -> WARNING" {
		t.Fatalf("lines = %q", lines)
	}

	SetLogger(nil)
	Logf("dropped")
	if len(lines) != 1 {
		t.Errorf("muted logger still wrote: %q", lines)
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
