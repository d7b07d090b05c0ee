// Package task implements the benchmark tasks run before the evaluations:
// ordered action lists that wait for the target system to settle.
package task

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
)

// ActionWaitFor sleeps for sleep_time seconds. Every task accepts it.
const ActionWaitFor = "task_gen_wait_for"

// Number is a numeric action argument that may also be written as a string.
type Number float64

// UnmarshalYAML accepts numbers and numeric strings.
func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a number at line %d", node.Line)
	}
	v, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return fmt.Errorf("expected a number at line %d, got %q", node.Line, node.Value)
	}
	*n = Number(v)
	return nil
}

// Duration reads the number as seconds.
func (n Number) Duration() time.Duration {
	return time.Duration(float64(n) * float64(time.Second))
}

// Action is one step of a task. Which fields apply depends on Action.
type Action struct {
	Action string `yaml:"action"`

	SleepTime Number `yaml:"sleep_time,omitempty"`

	Service                string `yaml:"service,omitempty"`
	Operation              string `yaml:"operation,omitempty"`
	WaitRetryTime          Number `yaml:"wait_retry_time,omitempty"`
	EventTimeout           Number `yaml:"event_timeout,omitempty"`
	ForcedStopTimeoutLimit Number `yaml:"forced_stop_timeout_limit,omitempty"`

	StreamKey  string `yaml:"stream_key,omitempty"`
	StreamSize Number `yaml:"stream_size,omitempty"`
}

// Clock abstracts time for the polling loops.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handler runs one kind of action.
type Handler func(ctx context.Context, a Action) error

// Runner executes action lists in order.
type Runner struct {
	log      *logrus.Entry
	clock    Clock
	handlers map[string]Handler
}

// NewRunner creates a runner for the named task that handles ActionWaitFor.
func NewRunner(name, loggingLevel string, clock Clock) *Runner {
	if clock == nil {
		clock = RealClock{}
	}
	r := &Runner{
		log:      eval.Logger(name, loggingLevel),
		clock:    clock,
		handlers: make(map[string]Handler),
	}
	r.Handle(ActionWaitFor, r.waitFor)
	return r
}

// Handle registers the handler of an action kind.
func (r *Runner) Handle(action string, h Handler) {
	r.handlers[action] = h
}

// Execute runs the actions in order. Actions nobody handles are logged and
// skipped; the first failing action stops the task.
func (r *Runner) Execute(ctx context.Context, actions []Action) error {
	r.log.Info("executing actions")
	for i, a := range actions {
		h, ok := r.handlers[a.Action]
		if !ok {
			r.log.Warnf("ignoring unknown action %q", a.Action)
			continue
		}
		r.log.Infof("processing action %q", a.Action)
		if err := h(ctx, a); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Action, err)
		}
	}
	return nil
}

func (r *Runner) waitFor(ctx context.Context, a Action) error {
	r.log.Debugf("sleeping for %g seconds", float64(a.SleepTime))
	return r.clock.Sleep(ctx, a.SleepTime.Duration())
}

// poll sleeps retry, calls check, and stops once check reports done or the
// forced limit has elapsed since the first call.
func (r *Runner) poll(ctx context.Context, retry, limit time.Duration, check func(now time.Time) (bool, error)) error {
	start := r.clock.Now()
	for {
		r.log.Infof("waiting %s before retry", retry)
		if err := r.clock.Sleep(ctx, retry); err != nil {
			return err
		}
		now := r.clock.Now()
		done, err := check(now)
		if err != nil {
			return err
		}
		forced := now.Sub(start) > limit
		if done || forced {
			r.log.WithField("forced", forced).Infof("stop waiting after %s", r.clock.Now().Sub(start))
			return nil
		}
	}
}
