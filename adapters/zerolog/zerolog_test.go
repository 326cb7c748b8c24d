package zerologadapter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	choked "github.com/choked/choked-go"
)

var _ choked.Logger = (*ZerologLogger)(nil)

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	l := New(&zl)

	l.Debugf("denied key '%s'", "api")
	l.Errorf("acquire failed: %v", "boom")

	out := buf.String()
	if !strings.Contains(out, `"level":"debug"`) || !strings.Contains(out, "denied key 'api'") {
		t.Errorf("missing debug line in %q", out)
	}
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "acquire failed: boom") {
		t.Errorf("missing error line in %q", out)
	}
}

func TestZerologLogger_NilUsesGlobal(t *testing.T) {
	if l := New(nil); l == nil {
		t.Fatal("New(nil) should fall back to the global logger")
	}
}
