package scheduling

import (
	"fmt"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
)

// InterEventGap is the dispatch overhead between two consecutive synthetic
// completions on one worker, in microseconds.
const InterEventGap = 4.0

// Anchor is the end time a worker's pending queue chains from.
// Valid is false when the worker finished no event in the window.
type Anchor struct {
	End   float64
	Valid bool
}

// Extrapolator projects processing timing for pending events.
type Extrapolator struct {
	Profiles       map[string]WorkerProfile
	ApplyVariation bool
}

// Throughput returns the worker's rate for one event, shifted by the event's
// variation draw when variation is enabled.
func (x *Extrapolator) Throughput(profile WorkerProfile, ev Event) float64 {
	if !x.ApplyVariation {
		return profile.Throughput
	}
	return profile.Throughput + profile.ThroughputStd*ev.Variation
}

// Extrapolate fills in Timing for every event of queue, in place. The queue
// is first stable-sorted by schedule time. Each event starts InterEventGap
// after the previous end; the first chains from anchor, or, when the anchor
// is not valid, starts at its own scheduled time plus its processing time.
//
// A chained event's start ignores its own ScheduledTime. An event scheduled
// after the anchor therefore gets an end earlier than its scheduling, and
// its latency can come out negative. Existing results depend on this, so it
// is kept.
func (x *Extrapolator) Extrapolate(worker string, queue []Event, anchor Anchor) error {
	if len(queue) == 0 {
		return fmt.Errorf("%w: pending queue of worker %q", eval.ErrEmptyPopulation, worker)
	}
	profile, ok := x.Profiles[worker]
	if !ok {
		return fmt.Errorf("%w: %q", eval.ErrUnknownWorker, worker)
	}
	sortBySchedule(queue)

	prevEnd, chained := anchor.End, anchor.Valid
	for i := range queue {
		ev := &queue[i]
		rate := x.Throughput(profile, *ev)
		if rate <= 0 {
			return fmt.Errorf("%w: worker %q throughput %g for event %s",
				eval.ErrInvalidProfile, worker, rate, ev.TraceID)
		}
		processing := 1e6 / rate

		var start float64
		if chained {
			start = prevEnd + InterEventGap
		} else {
			start = float64(ev.ScheduledTime) + processing
			chained = true
		}
		ev.Timing = &Timing{Start: start, Duration: processing}
		ev.Finished = false
		prevEnd = ev.Timing.End()
	}
	return nil
}

// AssignVariation draws one variation delta per event from the event
// worker's own RNG stream: finished events first in table order, then the
// worker's pending queue in schedule order. The draw is shared by the
// throughput and energy of that event.
func AssignVariation(tl *Timeline, rng *eval.PartitionedRNG) {
	for i := range tl.Finished {
		ev := &tl.Finished[i]
		ev.Variation = rng.UnitDelta(eval.SubsystemWorker(ev.Worker))
	}
	for _, w := range tl.Workers() {
		q := tl.Pending[w]
		for i := range q {
			q[i].Variation = rng.UnitDelta(eval.SubsystemWorker(w))
		}
	}
}
