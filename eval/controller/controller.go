// Package controller runs a benchmark: the configured tasks in order, then
// every evaluation, and reports the folded verdicts to a webhook.
package controller

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/internal/httpjson"
)

// FileScheme marks a webhook that is a local file path.
const FileScheme = "file://"

// Module is one configured task or evaluation. Modules are configured by
// keyword only; positional args are decoded so a non-empty list can be
// rejected instead of silently ignored.
type Module struct {
	Module string    `yaml:"module"`
	Args   yaml.Node `yaml:"args"`
	Kwargs yaml.Node `yaml:"kwargs"`
}

// checkArgs fails when the module was given positional args.
func (m *Module) checkArgs() error {
	switch {
	case m.Args.Kind == 0:
		return nil
	case m.Args.Kind == yaml.ScalarNode && m.Args.Tag == "!!null":
		return nil
	case m.Args.Kind == yaml.SequenceNode && len(m.Args.Content) == 0:
		return nil
	}
	return fmt.Errorf("module %s: positional args are not supported, use kwargs", m.Module)
}

// Benchmark lists the tasks and evaluations of a run. Other keys are kept
// only in the echoed configuration.
type Benchmark struct {
	Tasks       []Module `yaml:"tasks"`
	Evaluations []Module `yaml:"evaluations"`
}

// Input is a benchmark request.
type Input struct {
	Benchmark     yaml.Node `yaml:"benchmark"`
	TargetSystem  yaml.Node `yaml:"target_system"`
	ResultWebhook string    `yaml:"result_webhook"`
}

// Result is the verdict of one evaluation module.
type Result struct {
	Module  string
	Verdict *eval.Verdict
}

// Evaluations is the folded outcome of every evaluation, serialized as
// {"passed": ..., "<module>": verdict, ...} in run order.
type Evaluations struct {
	Passed  bool
	Results []Result
}

func (e *Evaluations) add(module string, v *eval.Verdict) {
	if !v.Passed {
		e.Passed = false
	}
	for i := range e.Results {
		if e.Results[i].Module == module {
			e.Results[i].Verdict = v
			return
		}
	}
	e.Results = append(e.Results, Result{Module: module, Verdict: v})
}

// Verdict returns the verdict of a module.
func (e *Evaluations) Verdict(module string) (*eval.Verdict, bool) {
	for _, r := range e.Results {
		if r.Module == module {
			return r.Verdict, true
		}
	}
	return nil, false
}

func (e Evaluations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"passed":`)
	if e.Passed {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	for _, r := range e.Results {
		key, err := json.Marshal(r.Module)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Verdict)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Configs echoes the configuration of a run.
type Configs struct {
	ConfsID      string      `json:"confs_id"`
	Benchmark    interface{} `json:"benchmark"`
	TargetSystem interface{} `json:"target_system"`
}

// Report is the benchmark output sent to the webhook.
type Report struct {
	Evaluations Evaluations `json:"evaluations"`
	Configs     Configs     `json:"configs"`
	RunID       string      `json:"run_id"`
}

// ConfsID identifies a configuration pair: the md5 of the JSON encodings of
// benchmark and target system joined by ':'.
func ConfsID(benchmark, targetSystem interface{}) (string, error) {
	b, err := json.Marshal(benchmark)
	if err != nil {
		return "", fmt.Errorf("encoding benchmark: %w", err)
	}
	t, err := json.Marshal(targetSystem)
	if err != nil {
		return "", fmt.Errorf("encoding target system: %w", err)
	}
	sum := md5.Sum([]byte(string(b) + ":" + string(t)))
	return hex.EncodeToString(sum[:]), nil
}

// RunID is the last path segment of the webhook URL.
func RunID(webhook string) string {
	return webhook[strings.LastIndex(webhook, "/")+1:]
}

// Controller runs benchmarks.
type Controller struct {
	registry *Registry
	rest     *httpjson.Client
}

// New creates a controller resolving modules through registry.
func New(registry *Registry) *Controller {
	return &Controller{registry: registry, rest: httpjson.New()}
}

// RunTasks runs the tasks in order. A failing task aborts the benchmark.
func (c *Controller) RunTasks(ctx context.Context, tasks []Module) error {
	for _, m := range tasks {
		logrus.Infof("Running task: %s", m.Module)
		run, ok := c.registry.Task(m.Module)
		if !ok {
			return fmt.Errorf("unknown task module %q", m.Module)
		}
		if err := m.checkArgs(); err != nil {
			return err
		}
		if err := run(ctx, &m.Kwargs); err != nil {
			return fmt.Errorf("task %s: %w", m.Module, err)
		}
	}
	return nil
}

// RunEvaluations runs every evaluation. An evaluation that fails to run is
// recorded as a failed verdict carrying the error; the run goes on.
func (c *Controller) RunEvaluations(ctx context.Context, evaluations []Module) Evaluations {
	out := Evaluations{Passed: true}
	for _, m := range evaluations {
		logrus.Infof("Running evaluation: %s", m.Module)
		v, err := c.runEvaluation(ctx, m)
		if err != nil {
			logrus.WithField("evaluation", m.Module).Errorf("evaluation failed: %v", err)
			v = eval.FailedVerdict(err)
		}
		out.add(m.Module, v)
	}
	return out
}

func (c *Controller) runEvaluation(ctx context.Context, m Module) (*eval.Verdict, error) {
	run, ok := c.registry.Evaluation(m.Module)
	if !ok {
		return nil, fmt.Errorf("unknown evaluation module %q", m.Module)
	}
	if err := m.checkArgs(); err != nil {
		return nil, err
	}
	return run(ctx, &m.Kwargs)
}

// Run executes the benchmark of in and assembles its report.
func (c *Controller) Run(ctx context.Context, in *Input) (*Report, error) {
	if in.Benchmark.Kind == 0 {
		return nil, errors.New("benchmark is required")
	}
	var bm Benchmark
	if err := in.Benchmark.Decode(&bm); err != nil {
		return nil, fmt.Errorf("invalid benchmark: %w", err)
	}
	var benchmark, target interface{}
	if err := in.Benchmark.Decode(&benchmark); err != nil {
		return nil, err
	}
	if in.TargetSystem.Kind != 0 {
		if err := in.TargetSystem.Decode(&target); err != nil {
			return nil, fmt.Errorf("invalid target_system: %w", err)
		}
	}
	confsID, err := ConfsID(benchmark, target)
	if err != nil {
		return nil, err
	}

	logrus.Info("Running benchmark...")
	if err := c.RunTasks(ctx, bm.Tasks); err != nil {
		return nil, err
	}
	evaluations := c.RunEvaluations(ctx, bm.Evaluations)
	logrus.WithField("passed", evaluations.Passed).Info("Finished benchmark.")

	return &Report{
		Evaluations: evaluations,
		Configs:     Configs{ConfsID: confsID, Benchmark: benchmark, TargetSystem: target},
		RunID:       RunID(in.ResultWebhook),
	}, nil
}

// Deliver writes the report to a file:// webhook and returns the path, or
// posts it and returns the webhook's JSON reply.
func (c *Controller) Deliver(ctx context.Context, r *Report, webhook string) (interface{}, error) {
	if strings.HasPrefix(webhook, FileScheme) {
		path := strings.TrimPrefix(webhook, FileScheme)
		data, err := json.MarshalIndent(r, "", "    ")
		if err != nil {
			return nil, fmt.Errorf("encoding report: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("saving report: %w", err)
		}
		logrus.Infof("Saved results to %s", path)
		return path, nil
	}
	if webhook == "" {
		return nil, errors.New("result_webhook is required")
	}
	var reply interface{}
	if err := c.rest.PostJSON(ctx, webhook, r, &reply); err != nil {
		return nil, fmt.Errorf("sending results to %s: %w", webhook, err)
	}
	logrus.Infof("Sent results to %s", webhook)
	return reply, nil
}

// RunAndDeliver runs the benchmark and delivers its report.
func (c *Controller) RunAndDeliver(ctx context.Context, in *Input) (*Report, interface{}, error) {
	r, err := c.Run(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	reply, err := c.Deliver(ctx, r, in.ResultWebhook)
	return r, reply, err
}
