package sched

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"

	"github.com/rs/zerolog"
)

const queueDumpLimit = 1024

// A SnapshotWriter persists the scheduler state for postmortem inspection:
// a trigger-queue dump, an awaiting-response dump, and a goroutine stack
// dump, as human-readable text. The files are diagnostic only and not meant
// for restart or replay. Writing is guarded so it happens at most once per
// run.
type SnapshotWriter struct {
	dir  string
	log  zerolog.Logger
	once sync.Once
}

// NewSnapshotWriter creates a SnapshotWriter that writes into dir.
func NewSnapshotWriter(dir string, log zerolog.Logger) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, log: log}
}

// Write dumps the given queue sample and awaiting-response contents. The
// queue header reports queueTotal even when the sample is truncated. Calls
// after the first are no-ops.
func (w *SnapshotWriter) Write(
	queueTotal int,
	queued []ScheduledTrigger,
	awaiting []ScheduledTrigger,
) {
	w.once.Do(func() {
		if err := os.MkdirAll(w.dir, 0o755); err != nil {
			w.log.Error().Err(err).Str("dir", w.dir).
				Msg("cannot create snapshot directory")
			return
		}

		w.writeTriggers("trigger_queue.txt", queueTotal, queued)
		w.writeTriggers("awaiting_response.txt", len(awaiting), awaiting)
		w.writeStacks("stack_trace.txt")

		w.log.Info().Str("dir", w.dir).Msg("scheduler state dumped")
	})
}

func (w *SnapshotWriter) writeTriggers(
	name string,
	total int,
	triggers []ScheduledTrigger,
) {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		w.log.Error().Err(err).Str("file", name).Msg("cannot write dump")
		return
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	defer buf.Flush()

	fmt.Fprintf(buf, "total: %d\n", total)
	for _, st := range triggers {
		fmt.Fprintln(buf, formatTrigger(st))
	}
}

func (w *SnapshotWriter) writeStacks(name string) {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		w.log.Error().Err(err).Str("file", name).Msg("cannot write stack dump")
		return
	}
	defer f.Close()

	if err := pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
		w.log.Error().Err(err).Msg("cannot collect goroutine stacks")
	}
}

func formatTrigger(st ScheduledTrigger) string {
	agent := "<none>"
	if st.Agent != nil {
		agent = st.Agent.ID()
	}

	return fmt.Sprintf("id=%d tick=%d priority=%d agent=%s kind=%T",
		st.ID, st.Tick(), st.Priority, agent, st.Trigger)
}
