package controller

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/energy"
	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
	"github.com/Gnosis-MEP/benchmark-tools/eval/loadshedding"
	"github.com/Gnosis-MEP/benchmark-tools/eval/ranking"
	"github.com/Gnosis-MEP/benchmark-tools/eval/scheduling"
	"github.com/Gnosis-MEP/benchmark-tools/eval/servicespeed"
	"github.com/Gnosis-MEP/benchmark-tools/eval/streams"
	"github.com/Gnosis-MEP/benchmark-tools/eval/subaccuracy"
	"github.com/Gnosis-MEP/benchmark-tools/eval/task"
)

// EvaluationFunc runs one evaluation from its kwargs block.
type EvaluationFunc func(ctx context.Context, kwargs *yaml.Node) (*eval.Verdict, error)

// TaskFunc runs one task from its kwargs block.
type TaskFunc func(ctx context.Context, kwargs *yaml.Node) error

// StreamClient reads and sizes Redis streams.
type StreamClient interface {
	streams.Reader
	streams.Sizer
	Close() error
}

// Backends creates the clients the modules talk to. Zero fields use the
// real implementations.
type Backends struct {
	Jaeger func(host string) jaeger.Source
	Redis  func(address, port string) StreamClient
	Grid   func(host string) energy.ReadingSource
	Clock  task.Clock
}

func (b *Backends) fill() {
	if b.Jaeger == nil {
		b.Jaeger = jaeger.Open
	}
	if b.Redis == nil {
		b.Redis = func(address, port string) StreamClient { return streams.NewRedis(address, port) }
	}
	if b.Grid == nil {
		b.Grid = func(host string) energy.ReadingSource { return energy.NewGridClient(host) }
	}
	if b.Clock == nil {
		b.Clock = task.RealClock{}
	}
}

// Registry maps module names to their runners.
type Registry struct {
	evaluations map[string]EvaluationFunc
	tasks       map[string]TaskFunc
}

// NewRegistry returns a registry with every built-in evaluation and task.
func NewRegistry(b Backends) *Registry {
	b.fill()
	r := &Registry{
		evaluations: make(map[string]EvaluationFunc),
		tasks:       make(map[string]TaskFunc),
	}

	r.RegisterEvaluation(scheduling.Name, func(ctx context.Context, kwargs *yaml.Node) (*eval.Verdict, error) {
		var cfg scheduling.Config
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return nil, err
		}
		return scheduling.Run(ctx, b.Jaeger(cfg.JaegerAPIHost), &cfg)
	})
	r.RegisterEvaluation(loadshedding.Name, func(ctx context.Context, kwargs *yaml.Node) (*eval.Verdict, error) {
		var cfg loadshedding.Config
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return nil, err
		}
		return loadshedding.Run(ctx, b.Jaeger(cfg.JaegerAPIHost), &cfg)
	})
	r.RegisterEvaluation(servicespeed.Name, func(ctx context.Context, kwargs *yaml.Node) (*eval.Verdict, error) {
		var cfg servicespeed.Config
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return nil, err
		}
		return servicespeed.Run(ctx, b.Jaeger(cfg.JaegerAPIHost), &cfg)
	})
	r.RegisterEvaluation(ranking.Name, func(ctx context.Context, kwargs *yaml.Node) (*eval.Verdict, error) {
		var cfg ranking.Config
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return nil, err
		}
		client := b.Redis(cfg.RedisAddress, cfg.RedisPort)
		defer client.Close()
		return ranking.Run(ctx, client, &cfg)
	})
	r.RegisterEvaluation(energy.Name, func(ctx context.Context, kwargs *yaml.Node) (*eval.Verdict, error) {
		var cfg energy.Config
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return nil, err
		}
		var traces jaeger.TraceSource
		if cfg.JaegerAPIHost != "" {
			traces = b.Jaeger(cfg.JaegerAPIHost)
		}
		return energy.Run(ctx, b.Grid(cfg.EnergyGridAPIHost), traces, &cfg, b.Clock.Now())
	})
	r.RegisterEvaluation(subaccuracy.Name, func(_ context.Context, kwargs *yaml.Node) (*eval.Verdict, error) {
		var cfg subaccuracy.Config
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return nil, err
		}
		return subaccuracy.Run(&cfg)
	})

	r.RegisterTask(task.TraceTimeoutName, func(ctx context.Context, kwargs *yaml.Node) error {
		var cfg task.TraceTimeoutConfig
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return err
		}
		return task.RunTraceTimeout(ctx, b.Jaeger(cfg.JaegerAPIHost), &cfg, b.Clock)
	})
	r.RegisterTask(task.StreamSizeName, func(ctx context.Context, kwargs *yaml.Node) error {
		var cfg task.StreamSizeConfig
		if err := DecodeKwargs(kwargs, &cfg); err != nil {
			return err
		}
		client := b.Redis(cfg.RedisAddress, cfg.RedisPort)
		defer client.Close()
		return task.RunStreamSize(ctx, client, &cfg, b.Clock)
	})
	return r
}

// RegisterEvaluation adds or replaces an evaluation.
func (r *Registry) RegisterEvaluation(name string, f EvaluationFunc) {
	r.evaluations[name] = f
}

// RegisterTask adds or replaces a task.
func (r *Registry) RegisterTask(name string, f TaskFunc) {
	r.tasks[name] = f
}

// Evaluation looks up an evaluation by module name.
func (r *Registry) Evaluation(module string) (EvaluationFunc, bool) {
	f, ok := r.evaluations[ModuleName(module)]
	return f, ok
}

// Task looks up a task by module name.
func (r *Registry) Task(module string) (TaskFunc, bool) {
	f, ok := r.tasks[ModuleName(module)]
	return f, ok
}

// ModuleName normalizes dotted module paths such as
// "benchmark_tools.evaluation.workers_scheduling_evaluation" or
// "benchmark_tools.task_generator.task_wait_event_trace_timeout" to the
// registered names.
func ModuleName(module string) string {
	name := module
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if strings.Contains(module, ".") {
		name = strings.TrimSuffix(name, "_evaluation")
		name = strings.TrimPrefix(name, "task_")
	}
	return name
}

// DecodeKwargs decodes a kwargs block into out, rejecting unknown keys. A
// missing block decodes as an empty mapping.
func DecodeKwargs(kwargs *yaml.Node, out interface{}) error {
	if kwargs == nil || kwargs.Kind == 0 {
		return nil
	}
	data, err := yaml.Marshal(kwargs)
	if err != nil {
		return fmt.Errorf("re-encoding kwargs: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid kwargs: %w", err)
	}
	return nil
}
