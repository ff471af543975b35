// Package statustable renders a bounded, periodically refreshed view of
// the longest-running commands in a build, alongside a free-form status
// line, using raw ANSI cursor control the way Ninja's own status printer
// does.
package statustable

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ahrtr/gocontainer/queue/priorityqueue"
)

// Config controls how many commands are shown at once and how often the
// table is allowed to repaint.
type Config struct {
	MaxCommands      int
	RefreshTimeoutMs int64
}

// Table tracks currently running commands and renders the K oldest of
// them (the ones most likely to be the critical path) on a fixed-height
// block of terminal lines that is repainted in place.
type Table struct {
	mu  sync.Mutex
	cfg Config
	out io.Writer
	seq int64

	running      map[int64]*commandEntry
	status       string
	lastRenderMs int64
	linesPrinted int
}

type commandEntry struct {
	id          int64
	seq         int64
	startTimeMs int64
	name        string
}

// cmdCmp orders commandEntry values ascending by start time, ties broken
// by insertion sequence, so the NEWEST entry compares greatest. Paired
// with WithMinHeap(false) below, that turns the heap into a size-bounded
// max-heap: Poll() evicts the newest entry first, leaving the oldest K
// commands as the visible set.
type cmdCmp struct{}

func (cmdCmp) Compare(a, b interface{}) (int, error) {
	x, y := a.(*commandEntry), b.(*commandEntry)
	if x.startTimeMs != y.startTimeMs {
		if x.startTimeMs < y.startTimeMs {
			return -1, nil
		}
		return 1, nil
	}
	if x.seq < y.seq {
		return -1, nil
	}
	if x.seq > y.seq {
		return 1, nil
	}
	return 0, nil
}

// New creates a Table that writes to out.
func New(cfg Config, out io.Writer) *Table {
	return &Table{cfg: cfg, out: out, running: make(map[int64]*commandEntry)}
}

// BuildStarted resets all tracked state for a fresh build.
func (t *Table) BuildStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = make(map[int64]*commandEntry)
	t.status = ""
	t.lastRenderMs = 0
	t.linesPrinted = 0
}

// BuildEnded clears any table currently painted on the terminal.
func (t *Table) BuildEnded() {
	t.ClearTable()
}

// CommandStarted registers a newly started command keyed by id (typically
// a build edge or PID) and its start time in milliseconds.
func (t *Table) CommandStarted(id int64, startTimeMs int64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.running[id] = &commandEntry{id: id, seq: t.seq, startTimeMs: startTimeMs, name: name}
}

// CommandEnded removes a command from the tracked set.
func (t *Table) CommandEnded(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, id)
}

// SetStatus sets the free-form status line shown above the command block
// (e.g. a "[3/10]" progress indicator).
func (t *Table) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// UpdateTable repaints the table if at least RefreshTimeoutMs has elapsed
// since the last repaint, given the current time in milliseconds.
func (t *Table) UpdateTable(nowMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if nowMs-t.lastRenderMs < t.cfg.RefreshTimeoutMs {
		return
	}
	t.lastRenderMs = nowMs
	t.render(nowMs)
}

// PrintPending forces an immediate repaint, bypassing the refresh gate.
func (t *Table) PrintPending(nowMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRenderMs = nowMs
	t.render(nowMs)
}

// selectVisible returns the MaxCommands oldest running commands, oldest
// first, using a bounded max-heap keyed on (startTimeMs, insertion seq) to
// evict the newest entries as the running set grows past capacity.
func (t *Table) selectVisible() []*commandEntry {
	if t.cfg.MaxCommands <= 0 {
		return nil
	}
	pq := priorityqueue.New().WithComparator(&cmdCmp{}).WithMinHeap(false)
	for _, e := range t.running {
		pq.Add(e)
		if pq.Size() > t.cfg.MaxCommands {
			pq.Poll()
		}
	}
	out := make([]*commandEntry, 0, pq.Size())
	for !pq.IsEmpty() {
		out = append(out, pq.Poll().(*commandEntry))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].startTimeMs != out[j].startTimeMs {
			return out[i].startTimeMs < out[j].startTimeMs
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (t *Table) render(nowMs int64) {
	t.clearLocked()
	visible := t.selectVisible()

	fmt.Fprintf(t.out, "%s\x1B[0K\n", t.status)
	for _, e := range visible {
		elapsed := formatElapsed(nowMs - e.startTimeMs)
		fmt.Fprintf(t.out, "%6s | %s\x1B[0K\n", elapsed, e.name)
	}
	total := 1 + len(visible)
	if total > 1 {
		fmt.Fprintf(t.out, "\x1B[%dA", total-1)
	}
	t.linesPrinted = total
}

// ClearTable erases whatever the table last painted and restores the
// cursor to the line it started from.
func (t *Table) ClearTable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
}

func (t *Table) clearLocked() {
	if t.linesPrinted == 0 {
		return
	}
	for i := 0; i < t.linesPrinted; i++ {
		fmt.Fprint(t.out, "\x1B[2K")
		if i != t.linesPrinted-1 {
			fmt.Fprint(t.out, "\x1B[1B")
		}
	}
	if t.linesPrinted > 1 {
		fmt.Fprintf(t.out, "\x1B[%dA", t.linesPrinted-1)
	}
	t.linesPrinted = 0
}

// formatElapsed renders an elapsed duration the way Ninja's status table
// does: fractional seconds under a minute, minutes-and-seconds beyond
// that, and a placeholder for a clock that has somehow gone backwards.
func formatElapsed(elapsedMs int64) string {
	if elapsedMs < 0 {
		return "??????"
	}
	if elapsedMs < 60000 {
		return fmt.Sprintf("%d.%ds", elapsedMs/1000, (elapsedMs%1000)/100)
	}
	return fmt.Sprintf("%dm%ds", elapsedMs/60000, (elapsedMs%60000)/1000)
}
