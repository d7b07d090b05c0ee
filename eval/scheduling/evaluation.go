package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

// Name is the evaluation module name used in benchmark configurations.
const Name = "workers_scheduling"

// Config is the kwargs block of the workers scheduling evaluation.
type Config struct {
	JaegerAPIHost               string                   `yaml:"jaeger_api_host"`
	OutputPath                  string                   `yaml:"output_path"`
	WorkersConfigurationProfile map[string]WorkerProfile `yaml:"workers_configuration_profile"`
	WorkersServiceTypes         []string                 `yaml:"workers_service_types"`
	PreConsumeStreamProcessName string                   `yaml:"pre_consume_stream_process_name"`
	ConsumeStreamProcessName    string                   `yaml:"consume_stream_process_name"`
	ExperimentTime              float64                  `yaml:"experiment_time"`
	KWhToCOERate                *float64                 `yaml:"khw_to_coe_rate"`
	EnergyCost                  *float64                 `yaml:"energy_cost"`
	ApplyWorkerConfigVariation  bool                     `yaml:"apply_worker_config_variation"`
	Seed                        *int64                   `yaml:"seed"`
	SchedulerService            string                   `yaml:"scheduler_service,omitempty"`
	SchedulerOperation          string                   `yaml:"scheduler_operation,omitempty"`
	DestinationTagKey           string                   `yaml:"destination_tag_key,omitempty"`
	ThresholdFunctions          *eval.Thresholds         `yaml:"threshold_functions"`
	LoggingLevel                string                   `yaml:"logging_level,omitempty"`
}

// ApplyDefaults fills in unset optional keys.
func (c *Config) ApplyDefaults() {
	if c.KWhToCOERate == nil {
		v := DefaultKWhToCOERate
		c.KWhToCOERate = &v
	}
	if c.EnergyCost == nil {
		v := DefaultEnergyCost
		c.EnergyCost = &v
	}
	if c.SchedulerService == "" {
		c.SchedulerService = DefaultSchedulerService
	}
	if c.SchedulerOperation == "" {
		c.SchedulerOperation = DefaultSchedulerOperation
	}
	if c.DestinationTagKey == "" {
		c.DestinationTagKey = DefaultDestinationTagKey
	}
	if c.ThresholdFunctions == nil {
		c.ThresholdFunctions = eval.NewThresholds()
	}
	if c.Seed == nil {
		v := time.Now().UnixNano()
		c.Seed = &v
	}
}

// seed returns the variation seed, 0 when none was set or defaulted.
func (c *Config) seed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// Validate checks required keys and worker profiles.
func (c *Config) Validate() error {
	if len(c.WorkersConfigurationProfile) == 0 {
		return errors.New("workers_configuration_profile must name at least one worker")
	}
	if len(c.WorkersServiceTypes) == 0 {
		return errors.New("workers_service_types must not be empty")
	}
	if c.PreConsumeStreamProcessName == "" {
		return errors.New("pre_consume_stream_process_name is required")
	}
	if c.ConsumeStreamProcessName == "" {
		return errors.New("consume_stream_process_name is required")
	}
	if c.ExperimentTime < 0 {
		return fmt.Errorf("experiment_time must be >= 0, got %g", c.ExperimentTime)
	}
	for _, w := range sortedKeys(c.WorkersConfigurationProfile) {
		if err := validateProfile(w, c.WorkersConfigurationProfile[w], c.ApplyWorkerConfigVariation); err != nil {
			return err
		}
	}
	return nil
}

func validateProfile(worker string, p WorkerProfile, variation bool) error {
	if p.Throughput <= 0 {
		return fmt.Errorf("%w: worker %q throughput must be > 0, got %g", eval.ErrInvalidProfile, worker, p.Throughput)
	}
	if p.ThroughputStd < 0 || p.EnergyConsumptionStd < 0 || p.EnergyConsumptionStandbyStd < 0 {
		return fmt.Errorf("%w: worker %q standard deviations must be >= 0", eval.ErrInvalidProfile, worker)
	}
	if p.EnergyConsumption < 0 || p.EnergyConsumptionStandby < 0 {
		return fmt.Errorf("%w: worker %q energy consumption must be >= 0", eval.ErrInvalidProfile, worker)
	}
	if variation && p.Throughput-p.ThroughputStd <= 0 {
		return fmt.Errorf("%w: worker %q throughput %g minus throughput_std %g must stay > 0",
			eval.ErrInvalidProfile, worker, p.Throughput, p.ThroughputStd)
	}
	if variation && p.EnergyConsumption-p.EnergyConsumptionStd < 0 {
		return fmt.Errorf("%w: worker %q energy_consumption %g minus energy_consumption_std %g must stay >= 0",
			eval.ErrInvalidProfile, worker, p.EnergyConsumption, p.EnergyConsumptionStd)
	}
	if variation && p.EnergyConsumptionStandby-p.EnergyConsumptionStandbyStd < 0 {
		return fmt.Errorf("%w: worker %q energy_consumption_standby %g minus energy_consumption_standby_std %g must stay >= 0",
			eval.ErrInvalidProfile, worker, p.EnergyConsumptionStandby, p.EnergyConsumptionStandbyStd)
	}
	return nil
}

// ClassifierConfig returns the span names of the configuration.
func (c *Config) ClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		SchedulerService:    c.SchedulerService,
		PreConsumeOperation: c.PreConsumeStreamProcessName,
		WorkerServiceTypes:  c.WorkersServiceTypes,
		ConsumeOperation:    c.ConsumeStreamProcessName,
		DestinationTagKey:   c.DestinationTagKey,
	}
}

// AggregateConfig returns the aggregation inputs for totalTraces traces.
func (c *Config) AggregateConfig(totalTraces int) AggregateConfig {
	return AggregateConfig{
		Profiles:       c.WorkersConfigurationProfile,
		ExperimentTime: c.ExperimentTime,
		TotalTraces:    totalTraces,
		KWhToCOERate:   *c.KWhToCOERate,
		EnergyCost:     *c.EnergyCost,
	}
}

// Header returns the export header describing this run.
func (c *Config) Header(totalTraces int) *ResultsHeader {
	return &ResultsHeader{
		Version:                    ResultsVersion,
		TimeUnit:                   "s",
		CreatedAt:                  time.Now().UTC().Format(time.RFC3339),
		ExperimentTime:             c.ExperimentTime,
		TotalTraces:                totalTraces,
		Seed:                       c.seed(),
		ApplyWorkerConfigVariation: c.ApplyWorkerConfigVariation,
		Workers:                    c.WorkersConfigurationProfile,
	}
}

// Result is the full output of one computation.
type Result struct {
	Timeline *Timeline
	Finished []EventResult
	Pending  []EventResult
	Skipped  int // timed events whose row could not be derived
	Metrics  eval.Metrics
}

// Compute reconstructs, extrapolates and aggregates a trace set. cfg must
// have defaults applied.
func Compute(traces []jaeger.Trace, cfg *Config) (*Result, error) {
	log := eval.Logger(Name, cfg.LoggingLevel)
	profiles := cfg.WorkersConfigurationProfile

	tl := Reconstruct(traces, NewClassifier(cfg.ClassifierConfig()), sortedKeys(profiles))
	if cfg.ApplyWorkerConfigVariation {
		AssignVariation(tl, eval.NewPartitionedRNG(eval.NewRunKey(cfg.seed())))
	}
	res := &Result{Timeline: tl}

	rows := func(events []Event) ([]EventResult, error) {
		out := make([]EventResult, 0, len(events))
		for _, ev := range events {
			profile, ok := profiles[ev.Worker]
			if !ok {
				return nil, fmt.Errorf("%w: %q (event %s)", eval.ErrUnknownWorker, ev.Worker, ev.TraceID)
			}
			r, err := ComputeResult(ev, profile, cfg.ApplyWorkerConfigVariation)
			if err != nil {
				log.Warnf("skipping event: %v", err)
				res.Skipped++
				continue
			}
			out = append(out, r)
		}
		return out, nil
	}

	var err error
	if res.Finished, err = rows(tl.Finished); err != nil {
		return nil, err
	}

	x := &Extrapolator{Profiles: profiles, ApplyVariation: cfg.ApplyWorkerConfigVariation}
	for _, w := range tl.Workers() {
		queue := tl.Pending[w]
		if len(queue) == 0 {
			continue
		}
		if err := x.Extrapolate(w, queue, tl.LastFinishedEnd(w)); err != nil {
			return nil, err
		}
		pending, err := rows(queue)
		if err != nil {
			return nil, err
		}
		res.Pending = append(res.Pending, pending...)
	}
	log.Debugf("%d finished rows, %d extrapolated rows, %d skipped", len(res.Finished), len(res.Pending), res.Skipped)

	res.Metrics, err = Aggregate(res.Finished, res.Pending, cfg.AggregateConfig(tl.Total))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reaggregate recomputes the metrics of an exported results directory.
func Reaggregate(exported *ExportedResults, cfg *Config) (eval.Metrics, error) {
	cfg.ApplyDefaults()
	agg := cfg.AggregateConfig(exported.Header.TotalTraces)
	if len(agg.Profiles) == 0 {
		agg.Profiles = exported.Header.Workers
	}
	agg.ExperimentTime = exported.Header.ExperimentTime
	return Aggregate(exported.Finished, exported.Pending, agg)
}

// Run fetches the scheduler traces, computes the metrics, exports the tables
// when an output path is set, and verifies the thresholds.
func Run(ctx context.Context, src jaeger.TraceSource, cfg *Config) (*eval.Verdict, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	log := eval.Logger(Name, cfg.LoggingLevel)
	log.Debug("evaluating scheduler results for the configured workers")
	if cfg.ApplyWorkerConfigVariation {
		log.Infof("worker config variation seed: %d", cfg.seed())
	}

	traces, err := src.Traces(ctx, jaeger.TraceQuery{Service: cfg.SchedulerService, Operation: cfg.SchedulerOperation})
	if err != nil {
		return nil, fmt.Errorf("fetching scheduler traces: %w", err)
	}
	res, err := Compute(traces, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.OutputPath != "" {
		if err := ExportResults(cfg.OutputPath, cfg.Header(res.Timeline.Total), res); err != nil {
			return nil, err
		}
		log.Infof("results written to %s", cfg.OutputPath)
	}
	return eval.VerifyThresholds(res.Metrics, cfg.ThresholdFunctions)
}
