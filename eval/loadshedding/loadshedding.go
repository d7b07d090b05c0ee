// Package loadshedding measures how often the scheduler shed events.
package loadshedding

import (
	"context"
	"fmt"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

const (
	// Name is the evaluation module name used in benchmark configurations.
	Name = "scheduler_load_shedding"

	// ShedOperation is the span the scheduler emits for a shed event.
	ShedOperation = "log_event_load_shedding"
)

// Config is the kwargs block of the load-shedding evaluation.
type Config struct {
	JaegerAPIHost      string           `yaml:"jaeger_api_host"`
	SchedulerService   string           `yaml:"scheduler_service,omitempty"`
	SchedulerOperation string           `yaml:"scheduler_operation,omitempty"`
	ThresholdFunctions *eval.Thresholds `yaml:"threshold_functions"`
	LoggingLevel       string           `yaml:"logging_level,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.SchedulerService == "" {
		c.SchedulerService = "Scheduler"
	}
	if c.SchedulerOperation == "" {
		c.SchedulerOperation = "process_data_event"
	}
	if c.ThresholdFunctions == nil {
		c.ThresholdFunctions = eval.NewThresholds()
	}
}

// Compute returns load_shedding_rate (shed traces / traces) and data_points.
// An empty trace set is ErrEmptyPopulation.
func Compute(traces []jaeger.Trace) (eval.Metrics, error) {
	shed := 0
	for _, tr := range traces {
		if tr.HasOperation(ShedOperation) {
			shed++
		}
	}
	rate, err := eval.Rate("load_shedding_rate", float64(shed), float64(len(traces)))
	if err != nil {
		return nil, err
	}
	var m eval.Metrics
	m.Add("load_shedding_rate", rate)
	m.Add("data_points", float64(len(traces)))
	return m, nil
}

// Run fetches the scheduler traces and verifies the load-shedding rate.
func Run(ctx context.Context, src jaeger.TraceSource, cfg *Config) (*eval.Verdict, error) {
	cfg.applyDefaults()
	log := eval.Logger(Name, cfg.LoggingLevel)
	log.Debug("evaluating scheduler overall load shedding rate")

	traces, err := src.Traces(ctx, jaeger.TraceQuery{Service: cfg.SchedulerService, Operation: cfg.SchedulerOperation})
	if err != nil {
		return nil, fmt.Errorf("fetching scheduler traces: %w", err)
	}
	log.Debugf("total event traces being analysed: %d", len(traces))
	m, err := Compute(traces)
	if err != nil {
		return nil, err
	}
	return eval.VerifyThresholds(m, cfg.ThresholdFunctions)
}
