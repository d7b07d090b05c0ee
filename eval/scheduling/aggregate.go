package scheduling

import (
	"fmt"
	"math"
	"sort"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
)

const (
	// HoursPerYear scales observed-window energy to a one-year estimate.
	HoursPerYear = 8760.0

	DefaultKWhToCOERate = 0.954 // kg CO2e per kWh
	DefaultEnergyCost   = 0.192 // currency units per kWh
)

// AggregateConfig carries the run-wide inputs of Aggregate.
type AggregateConfig struct {
	Profiles       map[string]WorkerProfile
	ExperimentTime float64 // seconds; <= 0 derives the window from the events
	TotalTraces    int
	KWhToCOERate   float64
	EnergyCost     float64
}

// EnergyBreakdown is the energy of one population over one window, in kWh.
type EnergyBreakdown struct {
	Processing float64
	Standby    float64
}

// Total returns processing + standby energy.
func (e EnergyBreakdown) Total() float64 {
	return e.Processing + e.Standby
}

// EnergyUsage sums active energy per worker and charges standby energy to
// every profiled worker for the part of the window it spent idle. Idle time
// never goes negative.
func EnergyUsage(rows []EventResult, profiles map[string]WorkerProfile, window float64) EnergyBreakdown {
	activeWs := make(map[string]float64)
	busySec := make(map[string]float64)
	for _, r := range rows {
		activeWs[r.Worker] += r.EnergyWattSec
		busySec[r.Worker] += r.ProcessingTimeSec
	}

	var e EnergyBreakdown
	for _, w := range sortedKeys(activeWs) {
		e.Processing += activeWs[w] / 1000 / 3600
	}
	for _, w := range sortedKeys(profiles) {
		idle := math.Max(0, window-busySec[w])
		e.Standby += StandbyKWh(profiles[w].EnergyConsumptionStandby, idle)
	}
	return e
}

// StandbyKWh converts standby watts held for idleSec seconds into kWh.
func StandbyKWh(watts, idleSec float64) float64 {
	return watts / 1000 * idleSec / 3600
}

// OneYear linearly scales energy observed over windowSec to HoursPerYear.
func OneYear(kwh, windowSec float64) float64 {
	return kwh * HoursPerYear / (windowSec / 3600)
}

// Windows returns the processed and extended experiment windows, in seconds.
//
// The processed window is experimentTime when positive, otherwise the span
// from the earliest schedule to the latest end of the finished rows. The
// extended window grows it by however far extrapolated events end past the
// last finished end.
func Windows(finished, pending []EventResult, experimentTime float64) (proc, ext float64, err error) {
	if len(finished) == 0 {
		return 0, 0, fmt.Errorf("%w: processed events", eval.ErrEmptyPopulation)
	}
	lastProc := maxEnd(finished)
	proc = experimentTime
	if proc <= 0 {
		first := finished[0].ScheduledTimeSec
		for _, r := range finished[1:] {
			first = math.Min(first, r.ScheduledTimeSec)
		}
		proc = lastProc - first
	}
	if proc <= 0 {
		return 0, 0, fmt.Errorf("%w: experiment window", eval.ErrEmptyPopulation)
	}
	ext = proc
	if len(pending) > 0 {
		ext += math.Max(0, maxEnd(pending)-lastProc)
	}
	return proc, ext, nil
}

// Aggregate computes the system metrics of the processed population
// (finished rows) and of the extended population (finished + pending rows).
func Aggregate(finished, pending []EventResult, cfg AggregateConfig) (eval.Metrics, error) {
	if err := checkWorkers(finished, cfg.Profiles); err != nil {
		return nil, err
	}
	if err := checkWorkers(pending, cfg.Profiles); err != nil {
		return nil, err
	}
	procWindow, extWindow, err := Windows(finished, pending, cfg.ExperimentTime)
	if err != nil {
		return nil, err
	}
	extended := make([]EventResult, 0, len(finished)+len(pending))
	extended = append(extended, finished...)
	extended = append(extended, pending...)

	var m eval.Metrics
	m.Add("total_traces", float64(cfg.TotalTraces))
	m.Add("total_processed", float64(len(finished)))
	m.Add("total_pending", float64(len(pending)))

	procEnergy, err := populationMetrics(&m, "", "proc_", finished, procWindow, cfg.Profiles)
	if err != nil {
		return nil, err
	}
	m.Add("proc_one_year_energy_kwh", OneYear(procEnergy.Total(), procWindow))

	m.Add("ext_total_processed", float64(len(extended)))
	extEnergy, err := populationMetrics(&m, "ext_", "total_", extended, extWindow, cfg.Profiles)
	if err != nil {
		return nil, err
	}
	yearKWh := OneYear(extEnergy.Total(), extWindow)
	m.Add("one_year_energy_kwh", yearKWh)

	m.Add("energy_cost", extEnergy.Total()*cfg.EnergyCost)
	m.Add("energy_coe", extEnergy.Total()*cfg.KWhToCOERate)
	m.Add("one_year_energy_cost", yearKWh*cfg.EnergyCost)
	m.Add("one_year_energy_coe", yearKWh*cfg.KWhToCOERate)

	m.Add("proc_exp_time", procWindow)
	m.Add("extended_exp_time", extWindow)
	m.Add("standby_kw", standbyKW(cfg.Profiles))
	return m, nil
}

// populationMetrics adds the summary, throughput and energy metrics of one
// population. statPrefix names accuracy/latency/throughput; energyPrefix
// names the energy totals.
func populationMetrics(m *eval.Metrics, statPrefix, energyPrefix string, rows []EventResult, window float64, profiles map[string]WorkerProfile) (EnergyBreakdown, error) {
	accuracy := make([]float64, len(rows))
	latency := make([]float64, len(rows))
	for i, r := range rows {
		accuracy[i] = r.Accuracy
		latency[i] = r.Latency
	}
	acc, err := eval.Summarize(statPrefix+"accuracy", accuracy)
	if err != nil {
		return EnergyBreakdown{}, err
	}
	lat, err := eval.Summarize(statPrefix+"latency", latency)
	if err != nil {
		return EnergyBreakdown{}, err
	}
	throughput, err := eval.Rate(statPrefix+"sys_throughput", float64(len(rows)), window)
	if err != nil {
		return EnergyBreakdown{}, err
	}
	m.AddSummary(statPrefix+"accuracy", acc)
	m.AddSummary(statPrefix+"latency", lat)
	m.Add(statPrefix+"sys_throughput", throughput)

	e := EnergyUsage(rows, profiles, window)
	m.Add(energyPrefix+"processing_energy_kwh", e.Processing)
	m.Add(energyPrefix+"standby_energy_kwh", e.Standby)
	m.Add(energyPrefix+"energy_kwh", e.Total())
	return e, nil
}

func standbyKW(profiles map[string]WorkerProfile) float64 {
	var kw float64
	for _, w := range sortedKeys(profiles) {
		kw += profiles[w].EnergyConsumptionStandby / 1000
	}
	return kw
}

func maxEnd(rows []EventResult) float64 {
	end := rows[0].WorkerEndTimeSec
	for _, r := range rows[1:] {
		end = math.Max(end, r.WorkerEndTimeSec)
	}
	return end
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
