package scheduling

import (
	"fmt"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
)

// EventResult is the tabular row derived from one event. Times are in
// seconds, energy in watt-seconds and watt-hours.
type EventResult struct {
	TraceID             string
	Worker              string
	WorkerThroughput    float64 // effective events/s for this event
	WorkerEnergy        float64 // effective active watts for this event
	WorkerEnergyStandby float64 // standby watts
	Accuracy            float64
	Throughput          float64 // 1 / ProcessingTimeSec
	Latency             float64 // processing end - trace start
	EnergyWattSec       float64
	EnergyWattHour      float64
	ProcessingTimeSec   float64
	Finished            bool
	WorkerEndTimeSec    float64
	ScheduledTimeSec    float64
}

// ComputeResult derives the row of one timed event. Effective throughput and
// active watts include the event's variation draw when applyVariation is set.
func ComputeResult(ev Event, profile WorkerProfile, applyVariation bool) (EventResult, error) {
	if ev.Timing == nil {
		return EventResult{}, fmt.Errorf("event %s on worker %q has no processing timing", ev.TraceID, ev.Worker)
	}
	processing := ev.Timing.Duration / 1e6
	if processing <= 0 {
		return EventResult{}, fmt.Errorf("event %s on worker %q has non-positive processing time %g s",
			ev.TraceID, ev.Worker, processing)
	}

	rate, watts := profile.Throughput, profile.EnergyConsumption
	if applyVariation {
		rate += profile.ThroughputStd * ev.Variation
		watts += profile.EnergyConsumptionStd * ev.Variation
	}
	end := ev.Timing.End() / 1e6
	energy := processing * watts

	return EventResult{
		TraceID:             ev.TraceID,
		Worker:              ev.Worker,
		WorkerThroughput:    rate,
		WorkerEnergy:        watts,
		WorkerEnergyStandby: profile.EnergyConsumptionStandby,
		Accuracy:            profile.Accuracy,
		Throughput:          1 / processing,
		Latency:             end - float64(ev.InitTime)/1e6,
		EnergyWattSec:       energy,
		EnergyWattHour:      energy / 3600,
		ProcessingTimeSec:   processing,
		Finished:            ev.Finished,
		WorkerEndTimeSec:    end,
		ScheduledTimeSec:    float64(ev.ScheduledTime) / 1e6,
	}, nil
}

// checkWorkers fails with ErrUnknownWorker on the first row whose worker has
// no profile.
func checkWorkers(rows []EventResult, profiles map[string]WorkerProfile) error {
	for _, r := range rows {
		if _, ok := profiles[r.Worker]; !ok {
			return fmt.Errorf("%w: %q (event %s)", eval.ErrUnknownWorker, r.Worker, r.TraceID)
		}
	}
	return nil
}
