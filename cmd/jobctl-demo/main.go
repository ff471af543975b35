// Command jobctl-demo wires six of the seven coordination-core components
// (all but the jobserver Pool, which it never creates) together against a
// handful of shell commands, the way the teacher's own
// main.go drove RealCommandRunner against a SubprocessSet: parse
// MAKEFLAGS, open a jobserver client, gate command starts on token
// acquisition, and render a live status table while commands run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yawuliu/jobctl/canonpath"
	"github.com/yawuliu/jobctl/internal/log"
	"github.com/yawuliu/jobctl/jobserver"
	"github.com/yawuliu/jobctl/statustable"
	"github.com/yawuliu/jobctl/subprocess"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go terminateHandler(cancel)

	cfg, err := jobserver.ParseNativeMakeFlagsValue(os.Getenv("MAKEFLAGS"))
	if err != nil {
		log.Warning("jobserver: %v, falling back to no coordination", err)
		cfg = jobserver.Config{Mode: jobserver.ModeNone}
	}

	var client jobserver.Client
	if cfg.Mode != jobserver.ModeNone {
		client, err = jobserver.NewClient(cfg)
		if err != nil {
			log.Error("jobserver client: %v", err)
			os.Exit(1)
		}
		defer client.Close()
	}

	commands := []string{
		"echo building a.o && sleep 0.1",
		"echo building b.o && sleep 0.2",
		"echo building c.o && sleep 0.05",
	}

	table := statustable.New(statustable.Config{MaxCommands: 4, RefreshTimeoutMs: 100}, os.Stdout)
	table.BuildStarted()
	defer table.BuildEnded()

	set := subprocess.New()
	type inflight struct {
		id   int64
		slot jobserver.Slot
		name string
	}
	tracked := map[subprocess.Subprocess]inflight{}
	started := 0
	var nextID int64

	for started < len(commands) || set.Running() > 0 {
		select {
		case <-ctx.Done():
			set.Clear()
			return
		default:
		}

		if started < len(commands) {
			slot := acquireSlotOrProceed(client)
			name := canonpath.New(fmt.Sprintf("out/%d.o", started)).Value()
			sp, err := set.Add(commands[started], false)
			if err != nil {
				log.Error("spawn %q: %v", name, err)
				releaseSlot(client, slot)
			} else {
				nextID++
				tracked[sp] = inflight{id: nextID, slot: slot, name: name}
				table.CommandStarted(nextID, nowMs(), name)
				table.SetStatus(fmt.Sprintf("[%d/%d]", started+1, len(commands)))
			}
			started++
		}

		if _, err := set.DoWork(); err != nil {
			log.Warning("DoWork: %v", err)
		}
		for sp := set.NextFinished(); sp != nil; sp = set.NextFinished() {
			status := sp.Finish()
			info := tracked[sp]
			delete(tracked, sp)
			table.CommandEnded(info.id)
			releaseSlot(client, info.slot)
			log.Info("finished %s (%s): %s", info.name, status, sp.Output())
		}
		table.UpdateTable(nowMs())
	}
}

func releaseSlot(client jobserver.Client, slot jobserver.Slot) {
	if client == nil || !slot.IsValid() {
		return
	}
	client.Release(slot)
}

func acquireSlotOrProceed(client jobserver.Client) jobserver.Slot {
	if client == nil {
		return jobserver.Slot{}
	}
	for {
		slot := client.TryAcquire()
		if slot.IsValid() {
			return slot
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func terminateHandler(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	cancel()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
