package telemetry

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologLevelsRouteCorrectly(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf))

	l.Warnf("disk at %d%%", 90)
	l.Errorf("poller failed: %s", "boom")

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "disk at 90%") {
		t.Fatalf("missing warn entry in log output: %s", out)
	}
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "poller failed: boom") {
		t.Fatalf("missing error entry in log output: %s", out)
	}
}
