package statustable

import (
	"bytes"
	"strings"
	"testing"
)

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{-1, "??????"},
		{0, "0.0s"},
		{570, "0.5s"},
		{59999, "59.9s"},
		{60000, "1m0s"},
		{125000, "2m5s"},
	}
	for _, c := range cases {
		if got := formatElapsed(c.ms); got != c.want {
			t.Errorf("formatElapsed(%d) = %q, want %q", c.ms, got, c.want)
		}
	}
}

func TestSelectVisible_BoundsToOldestK(t *testing.T) {
	tbl := New(Config{MaxCommands: 2, RefreshTimeoutMs: 0}, &bytes.Buffer{})
	tbl.CommandStarted(1, 100, "one")
	tbl.CommandStarted(2, 200, "two")
	tbl.CommandStarted(3, 300, "three")

	visible := tbl.selectVisible()
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible entries, got %d", len(visible))
	}
	if visible[0].name != "one" || visible[1].name != "two" {
		t.Errorf("expected the two oldest commands visible, got %v, %v", visible[0].name, visible[1].name)
	}
}

func TestSelectVisible_StableOnTiedStartTime(t *testing.T) {
	tbl := New(Config{MaxCommands: 3, RefreshTimeoutMs: 0}, &bytes.Buffer{})
	tbl.CommandStarted(1, 100, "a")
	tbl.CommandStarted(2, 100, "b")
	tbl.CommandStarted(3, 100, "c")

	visible := tbl.selectVisible()
	names := []string{visible[0].name, visible[1].name, visible[2].name}
	if names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("expected insertion-order tie-break, got %v", names)
	}
}

func TestRender_AtFiveHundredSeventyMs(t *testing.T) {
	var buf bytes.Buffer
	tbl := New(Config{MaxCommands: 4, RefreshTimeoutMs: 0}, &buf)
	tbl.BuildStarted()
	tbl.SetStatus("[1/2]")
	tbl.CommandStarted(1, 0, "cc foo.o")
	tbl.UpdateTable(570)

	out := buf.String()
	if !strings.Contains(out, "[1/2]") {
		t.Errorf("expected status line in output, got %q", out)
	}
	if !strings.Contains(out, "0.5s | cc foo.o") {
		t.Errorf("expected elapsed command line in output, got %q", out)
	}
}

func TestUpdateTable_RespectsRefreshGate(t *testing.T) {
	var buf bytes.Buffer
	tbl := New(Config{MaxCommands: 4, RefreshTimeoutMs: 100}, &buf)
	tbl.BuildStarted()
	tbl.UpdateTable(0)
	firstLen := buf.Len()
	tbl.UpdateTable(50)
	if buf.Len() != firstLen {
		t.Errorf("expected no repaint before refresh timeout elapsed")
	}
	tbl.UpdateTable(150)
	if buf.Len() == firstLen {
		t.Errorf("expected repaint once refresh timeout elapsed")
	}
}

func TestCommandEnded_RemovesFromVisible(t *testing.T) {
	tbl := New(Config{MaxCommands: 4, RefreshTimeoutMs: 0}, &bytes.Buffer{})
	tbl.CommandStarted(1, 0, "a")
	tbl.CommandStarted(2, 10, "b")
	tbl.CommandEnded(1)

	visible := tbl.selectVisible()
	if len(visible) != 1 || visible[0].name != "b" {
		t.Errorf("expected only 'b' visible after ending 'a', got %v", visible)
	}
}
