package stdlogadapter

import (
	"bytes"
	"log"
	"strings"
	"testing"

	choked "github.com/choked/choked-go"
)

var _ choked.Logger = (*StdLogger)(nil)

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(log.New(&buf, "", 0))

	l.Debugf("denied key '%s'", "api")
	l.Errorf("acquire failed: %v", "boom")

	out := buf.String()
	if !strings.Contains(out, "[DEBUG] denied key 'api'") {
		t.Errorf("missing debug line in %q", out)
	}
	if !strings.Contains(out, "[ERROR] acquire failed: boom") {
		t.Errorf("missing error line in %q", out)
	}
}

func TestStdLogger_NilUsesDefault(t *testing.T) {
	if l := New(nil); l == nil {
		t.Fatal("New(nil) should fall back to the default logger")
	}
}
