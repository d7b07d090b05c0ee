// Package scheduling reconstructs, from distributed traces, which worker
// processed each scheduled event and for how long, extrapolates the events
// still queued when the observation window closed, and aggregates throughput,
// latency and energy metrics for the processed and extended populations.
//
// Pipeline: Classify (per trace) → Reconstruct (finished table + pending
// queues) → Extrapolate (per worker queue) → ComputeResult (per event row) →
// Aggregate (system metrics) → eval.VerifyThresholds.
package scheduling

// Timing is the processing interval of an event on its worker, in
// microseconds (the trace time unit).
type Timing struct {
	Start    float64 `json:"worker_start_time"`
	Duration float64 `json:"worker_duration"`
}

// End returns Start + Duration.
func (t Timing) End() float64 {
	return t.Start + t.Duration
}

// Event is one scheduled event reconstructed from a trace.
//
// Finished events always carry a Timing. Pending events carry a nil Timing
// until the extrapolator projects one; Finished stays false afterwards.
type Event struct {
	TraceID       string  `json:"trace_id"`
	Worker        string  `json:"worker_stream_key"`
	InitTime      int64   `json:"init_time"`
	ScheduledTime int64   `json:"scheduled_time"`
	Timing        *Timing `json:"timing"`
	Finished      bool    `json:"worker_finished_process"`
	// Variation is the per-event profile variation draw in [-1, 1]; zero
	// when variation is disabled.
	Variation float64 `json:"variation"`
}

// WorkerProfile is the static capability profile of one worker.
type WorkerProfile struct {
	Throughput                  float64 `yaml:"throughput" json:"throughput"`
	ThroughputStd               float64 `yaml:"throughput_std" json:"throughput_std"`
	Accuracy                    float64 `yaml:"accuracy" json:"accuracy"`
	EnergyConsumption           float64 `yaml:"energy_consumption" json:"energy_consumption"`
	EnergyConsumptionStd        float64 `yaml:"energy_consumption_std" json:"energy_consumption_std"`
	EnergyConsumptionStandby    float64 `yaml:"energy_consumption_standby" json:"energy_consumption_standby"`
	EnergyConsumptionStandbyStd float64 `yaml:"energy_consumption_standby_std" json:"energy_consumption_standby_std"`
}
