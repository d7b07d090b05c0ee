package scheduling

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

// Timeline is the partition of a trace set into finished events and
// per-worker pending queues.
//
// Total == len(Finished) + Σ len(Pending[w]) + Dropped.
type Timeline struct {
	Finished []Event
	Pending  map[string][]Event
	Dropped  int // traces without a destination worker
	Total    int // traces classified
}

// Reconstruct classifies every trace. Every worker in workers gets a pending
// queue, empty or not; pending events for workers outside that set still get
// their own queue so the partition stays complete. Queues are stable-sorted
// by schedule time. The finished table keeps trace order.
func Reconstruct(traces []jaeger.Trace, c *Classifier, workers []string) *Timeline {
	tl := &Timeline{Pending: make(map[string][]Event, len(workers))}
	for _, w := range workers {
		tl.Pending[w] = []Event{}
	}
	for _, tr := range traces {
		tl.Total++
		ev, ok := c.Classify(tr)
		if !ok {
			tl.Dropped++
			continue
		}
		if ev.Finished {
			tl.Finished = append(tl.Finished, *ev)
			continue
		}
		tl.Pending[ev.Worker] = append(tl.Pending[ev.Worker], *ev)
	}
	for w := range tl.Pending {
		sortBySchedule(tl.Pending[w])
	}
	logrus.Debugf("reconstructed %d traces: %d finished, %d pending, %d dropped",
		tl.Total, len(tl.Finished), tl.PendingCount(), tl.Dropped)
	return tl
}

// PendingCount returns the number of pending events across all workers.
func (tl *Timeline) PendingCount() int {
	n := 0
	for _, q := range tl.Pending {
		n += len(q)
	}
	return n
}

// Workers returns the pending-queue keys in sorted order.
func (tl *Timeline) Workers() []string {
	keys := make([]string, 0, len(tl.Pending))
	for w := range tl.Pending {
		keys = append(keys, w)
	}
	sort.Strings(keys)
	return keys
}

// LastFinishedEnd returns the latest processing end time among the worker's
// finished events.
func (tl *Timeline) LastFinishedEnd(worker string) Anchor {
	var a Anchor
	for _, ev := range tl.Finished {
		if ev.Worker != worker || ev.Timing == nil {
			continue
		}
		if end := ev.Timing.End(); !a.Valid || end > a.End {
			a = Anchor{End: end, Valid: true}
		}
	}
	return a
}

func sortBySchedule(q []Event) {
	sort.SliceStable(q, func(i, j int) bool { return q[i].ScheduledTime < q[j].ScheduledTime })
}
