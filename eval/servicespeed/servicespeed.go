// Package servicespeed measures per-operation span durations of services.
package servicespeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

const (
	// Name is the evaluation module name used in benchmark configurations.
	Name = "per_service_speed"

	// DefaultConcurrency bounds the concurrent per-service trace queries.
	DefaultConcurrency = 4
)

// Services is either an explicit list of service names or "all".
type Services struct {
	All   bool
	Names []string
}

// UnmarshalYAML accepts the scalar "all" or a sequence of names.
func (s *Services) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != "all" {
			return fmt.Errorf("services: expected \"all\" or a list, got %q", node.Value)
		}
		*s = Services{All: true}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return fmt.Errorf("services: %w", err)
		}
		*s = Services{Names: names}
		return nil
	default:
		return fmt.Errorf("services: expected \"all\" or a list at line %d", node.Line)
	}
}

// Config is the kwargs block of the per-service speed evaluation.
type Config struct {
	JaegerAPIHost      string           `yaml:"jaeger_api_host"`
	Services           Services         `yaml:"services"`
	MaxConcurrency     int              `yaml:"max_concurrency,omitempty"`
	ThresholdFunctions *eval.Thresholds `yaml:"threshold_functions"`
	LoggingLevel       string           `yaml:"logging_level,omitempty"`
}

// Validate checks required keys.
func (c *Config) Validate() error {
	if !c.Services.All && len(c.Services.Names) == 0 {
		return errors.New("services must be \"all\" or a non-empty list")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0, got %d", c.MaxConcurrency)
	}
	if c.ThresholdFunctions == nil {
		c.ThresholdFunctions = eval.NewThresholds()
	}
	return nil
}

// OperationDurations groups, in first-seen order, the span durations (in
// seconds) of every operation the service ran in the traces.
func OperationDurations(traces []jaeger.Trace, service string) (ops []string, durations map[string][]float64) {
	durations = make(map[string][]float64)
	for _, tr := range traces {
		pid, ok := tr.ProcessIDFor(service)
		if !ok {
			continue
		}
		for _, span := range tr.Spans {
			if span.ProcessID != pid {
				continue
			}
			if _, seen := durations[span.OperationName]; !seen {
				ops = append(ops, span.OperationName)
			}
			durations[span.OperationName] = append(durations[span.OperationName], float64(span.Duration)/1e6)
		}
	}
	return ops, durations
}

// Compute returns <service>_<operation>_avg and _std for one service.
func Compute(traces []jaeger.Trace, service string) (eval.Metrics, error) {
	ops, durations := OperationDurations(traces, service)
	var m eval.Metrics
	for _, op := range ops {
		name := service + "_" + op
		s, err := eval.Summarize(name, durations[op])
		if err != nil {
			return nil, err
		}
		m.AddSummary(name, s)
	}
	return m, nil
}

// Skipped reports whether a service is the tracing backend's own.
func Skipped(service string) bool {
	return strings.Contains(service, "jaeger")
}

// Run fetches the traces of every service concurrently and verifies the
// per-operation speeds. Metrics follow the configured service order.
func Run(ctx context.Context, src jaeger.Source, cfg *Config) (*eval.Verdict, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	log := eval.Logger(Name, cfg.LoggingLevel)
	log.Debug("evaluating services speed")

	services := cfg.Services.Names
	if cfg.Services.All {
		var err error
		if services, err = src.Services(ctx); err != nil {
			return nil, fmt.Errorf("listing services: %w", err)
		}
	}
	var selected []string
	for _, s := range services {
		if !Skipped(s) {
			selected = append(selected, s)
		}
	}

	limit := cfg.MaxConcurrency
	if limit == 0 {
		limit = DefaultConcurrency
	}
	results := make([]eval.Metrics, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, service := range selected {
		g.Go(func() error {
			traces, err := src.Traces(gctx, jaeger.TraceQuery{Service: service})
			if err != nil {
				return fmt.Errorf("fetching traces of %s: %w", service, err)
			}
			log.Debugf("%s: %d traces", service, len(traces))
			m, err := Compute(traces, service)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all eval.Metrics
	for _, m := range results {
		for _, metric := range m {
			all.Add(metric.Name, metric.Value)
		}
	}
	return eval.VerifyThresholds(all, cfg.ThresholdFunctions)
}
