// Package energy evaluates the power drawn by devices over the benchmark,
// as recorded by an energy grid webservice.
package energy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

// Name is the evaluation module name used in benchmark configurations.
const Name = "energy_consumption"

// ConsumptionFactor converts the sum of real_energy readings into the total
// consumption metric.
const ConsumptionFactor = 10

// TimeKind selects how a window bound is resolved.
type TimeKind int

const (
	TimeUnset TimeKind = iota
	TimeLiteral
	TimeNow
	TimeJaeger
)

// TimeSpec is a window bound: a Unix timestamp, "now", or "jaeger" (taken
// from the first or last matching trace).
type TimeSpec struct {
	Kind  TimeKind
	Value float64
}

// UnmarshalYAML accepts a number, a numeric string, "now" or "jaeger".
func (t *TimeSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("time bound must be a scalar at line %d", node.Line)
	}
	if node.Tag == "!!null" {
		*t = TimeSpec{}
		return nil
	}
	switch strings.ToLower(node.Value) {
	case "now":
		*t = TimeSpec{Kind: TimeNow}
		return nil
	case "jaeger":
		*t = TimeSpec{Kind: TimeJaeger}
		return nil
	}
	v, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return fmt.Errorf("time bound %q: expected a timestamp, \"now\" or \"jaeger\"", node.Value)
	}
	*t = TimeSpec{Kind: TimeLiteral, Value: v}
	return nil
}

// TraceBound names the traces marking one end of the window.
type TraceBound struct {
	Service   string            `yaml:"service"`
	Operation string            `yaml:"operation"`
	Tags      map[string]string `yaml:"tags,omitempty"`
}

// TraceBounds names the traces marking the window start and end.
type TraceBounds struct {
	Start TraceBound `yaml:"start"`
	End   TraceBound `yaml:"end"`
}

// DefaultTraceBounds brackets the benchmark by the query add and delete
// actions of the client manager.
func DefaultTraceBounds() *TraceBounds {
	return &TraceBounds{
		Start: TraceBound{Service: "ClientManager", Operation: "process_action", Tags: map[string]string{"process-action-name": "addQuery"}},
		End:   TraceBound{Service: "ClientManager", Operation: "process_action", Tags: map[string]string{"process-action-name": "delQuery"}},
	}
}

// Config is the kwargs block of the energy consumption evaluation.
type Config struct {
	EnergyGridAPIHost   string           `yaml:"energy_grid_api_host"`
	JaegerAPIHost       string           `yaml:"jaeger_api_host,omitempty"`
	JaegerTracesConfigs *TraceBounds     `yaml:"jaeger_traces_configs,omitempty"`
	StartTime           TimeSpec         `yaml:"start_time"`
	EndTime             TimeSpec         `yaml:"end_time"`
	EnergyDeviceID      string           `yaml:"energy_device_id"`
	SaveReadingsOn      string           `yaml:"save_readings_on,omitempty"`
	ThresholdFunctions  *eval.Thresholds `yaml:"threshold_functions"`
	LoggingLevel        string           `yaml:"logging_level,omitempty"`
}

// Devices splits energy_device_id on ';'.
func (c *Config) Devices() []string {
	var out []string
	for _, d := range strings.Split(c.EnergyDeviceID, ";") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks required keys and applies defaults.
func (c *Config) Validate() error {
	if len(c.Devices()) == 0 {
		return errors.New("energy_device_id is required")
	}
	if c.StartTime.Kind == TimeUnset {
		return errors.New("start_time is required")
	}
	if c.StartTime.Kind == TimeNow {
		return errors.New("start_time cannot be \"now\"")
	}
	if c.EndTime.Kind == TimeUnset {
		c.EndTime.Kind = TimeNow
	}
	if c.JaegerTracesConfigs == nil {
		c.JaegerTracesConfigs = DefaultTraceBounds()
	}
	if c.ThresholdFunctions == nil {
		c.ThresholdFunctions = eval.NewThresholds()
	}
	return nil
}

// Window resolves the start and end bounds to Unix timestamps in seconds.
// traces may be nil when neither bound uses "jaeger".
func Window(ctx context.Context, cfg *Config, traces jaeger.TraceSource, now time.Time) (start, end float64, err error) {
	resolve := func(t TimeSpec, first bool) (float64, error) {
		switch t.Kind {
		case TimeLiteral:
			return t.Value, nil
		case TimeNow:
			return float64(now.UnixNano()) / 1e9, nil
		case TimeJaeger:
			if traces == nil {
				return 0, errors.New("a jaeger time bound needs jaeger_api_host")
			}
			bound := cfg.JaegerTracesConfigs.End
			if first {
				bound = cfg.JaegerTracesConfigs.Start
			}
			return TraceTimestamp(ctx, traces, bound, first)
		default:
			return 0, errors.New("unset time bound")
		}
	}
	if start, err = resolve(cfg.StartTime, true); err != nil {
		return 0, 0, fmt.Errorf("resolving start_time: %w", err)
	}
	if end, err = resolve(cfg.EndTime, false); err != nil {
		return 0, 0, fmt.Errorf("resolving end_time: %w", err)
	}
	return start, end, nil
}

// TraceTimestamp returns one second before the first span of the earliest
// matching trace, or, when first is false, one second after the last span
// of the latest one.
func TraceTimestamp(ctx context.Context, src jaeger.TraceSource, bound TraceBound, first bool) (float64, error) {
	traces, err := src.Traces(ctx, jaeger.TraceQuery{
		Service:   bound.Service,
		Operation: bound.Operation,
		Lookback:  "10h",
		Tags:      bound.Tags,
	})
	if err != nil {
		return 0, err
	}
	var ordered []jaeger.Trace
	for _, tr := range traces {
		if len(tr.Spans) > 0 {
			ordered = append(ordered, tr)
		}
	}
	if len(ordered) == 0 {
		return 0, fmt.Errorf("%w: traces of %s/%s", eval.ErrEmptyPopulation, bound.Service, bound.Operation)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Spans[0].StartTime < ordered[j].Spans[0].StartTime })

	if first {
		return float64(ordered[0].Spans[0].StartTime)/1e6 - 1, nil
	}
	last := ordered[len(ordered)-1]
	span := last.Spans[len(last.Spans)-1]
	return float64(span.End())/1e6 + 1, nil
}

// Compute returns, for one device, voltage, frequency and real_energy
// avg/std, the number of readings and the total consumption. A device
// without readings is ErrEmptyPopulation.
func Compute(readings []Reading, device string) (eval.Metrics, error) {
	prefix := "id_" + device + "-"
	voltage := make([]float64, len(readings))
	frequency := make([]float64, len(readings))
	realEnergy := make([]float64, len(readings))
	total := 0.0
	for i, r := range readings {
		voltage[i] = r.Voltage
		frequency[i] = r.Frequency
		realEnergy[i] = r.RealEnergy
		total += ConsumptionFactor * r.RealEnergy
	}

	var m eval.Metrics
	for _, series := range []struct {
		name   string
		values []float64
	}{
		{"voltage", voltage},
		{"frequency", frequency},
		{"real_energy", realEnergy},
	} {
		s, err := eval.Summarize(prefix+series.name, series.values)
		if err != nil {
			return nil, err
		}
		m.AddSummary(prefix+series.name, s)
	}
	m.Add(prefix+"data_points", float64(len(readings)))
	m.Add(prefix+"total_consumption", total)
	return m, nil
}

// SaveReadings writes the readings of a device as served, to path with "{}"
// replaced by the device id.
func SaveReadings(pathPattern, device string, readings []Reading) (string, error) {
	path := strings.ReplaceAll(pathPattern, "{}", device)
	raw := make([]json.RawMessage, len(readings))
	for i, r := range readings {
		if r.Raw != nil {
			raw[i] = r.Raw
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return "", err
		}
		raw[i] = data
	}
	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding readings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("saving readings: %w", err)
	}
	return path, nil
}

// Run resolves the window, fetches and optionally saves the readings of
// every device, and verifies the metrics.
func Run(ctx context.Context, grid ReadingSource, traces jaeger.TraceSource, cfg *Config, now time.Time) (*eval.Verdict, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	log := eval.Logger(Name, cfg.LoggingLevel)

	start, end, err := Window(ctx, cfg, traces, now)
	if err != nil {
		return nil, err
	}
	var all eval.Metrics
	for _, device := range cfg.Devices() {
		log.Debugf("evaluating energy usage of device %s from %s (%g) to %s (%g)", device,
			unixTime(start).Format(time.RFC3339), start, unixTime(end).Format(time.RFC3339), end)
		readings, err := grid.Readings(ctx, start, end, device)
		if err != nil {
			return nil, err
		}
		log.Debugf("total energy consumption values to be analysed: %d", len(readings))
		if cfg.SaveReadingsOn != "" {
			path, err := SaveReadings(cfg.SaveReadingsOn, device, readings)
			if err != nil {
				return nil, err
			}
			log.Infof("saved energy readings on %s", path)
		}
		m, err := Compute(readings, device)
		if err != nil {
			return nil, err
		}
		for _, metric := range m {
			all.Add(metric.Name, metric.Value)
		}
	}
	return eval.VerifyThresholds(all, cfg.ThresholdFunctions)
}

func unixTime(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9))
}
