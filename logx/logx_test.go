package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelsAndCategory(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(output())

	Info("CHAIN", "appended ", 2)
	Warn("POW", "slow")
	Debug("RPC", "req")
	Error("STORE", "boom")

	out := buf.String()
	for _, want := range []string{"[INFO][CHAIN]", "appended 2", "[WARN][POW]", "[DEBUG][RPC]", "[ERROR][STORE]: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestErrorfReturnsError(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(output())

	err := Errorf("bad block %d", 3)
	if err == nil || err.Error() != "bad block 3" {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "bad block 3") {
		t.Fatalf("error not logged: %s", buf.String())
	}
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("LOGFILE", "")
	if got := getLogFilename(); got != defaultLogFile {
		t.Errorf("getLogFilename() = %q, want %q", got, defaultLogFile)
	}
	t.Setenv("LOGFILE", "node.log")
	if got := getLogFilename(); got != "./logs/node.log" {
		t.Errorf("getLogFilename() = %q", got)
	}
	t.Setenv("LOGFILE_MAX_SIZE_MB", "nope")
	if got := getMaxSize(); got != defaultMaxSizeMB {
		t.Errorf("getMaxSize() = %d, want default", got)
	}
	t.Setenv("LOGFILE_MAX_AGE_DAYS", "3")
	if got := getMaxAge(); got != 3 {
		t.Errorf("getMaxAge() = %d, want 3", got)
	}
}
