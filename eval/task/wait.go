package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
	"github.com/Gnosis-MEP/benchmark-tools/eval/streams"
)

const (
	// TraceTimeoutName waits until a service stops producing traces.
	TraceTimeoutName = "wait_event_trace_timeout"
	// StreamSizeName waits until a stream backlog reaches a size.
	StreamSizeName = "wait_redis_stream_size_timeout"

	ActionWaitTraceTimeout = "wait_timeout_event_trace"
	ActionWaitStreamSize   = "wait_stream_size"
)

// TraceTimeoutConfig is the kwargs block of the trace timeout task.
type TraceTimeoutConfig struct {
	JaegerAPIHost string   `yaml:"jaeger_api_host"`
	Actions       []Action `yaml:"actions"`
	LoggingLevel  string   `yaml:"logging_level,omitempty"`
}

// StreamSizeConfig is the kwargs block of the stream size task.
type StreamSizeConfig struct {
	RedisAddress string   `yaml:"redis_address"`
	RedisPort    string   `yaml:"redis_port"`
	Actions      []Action `yaml:"actions"`
	LoggingLevel string   `yaml:"logging_level,omitempty"`
}

func checkRetry(a Action) error {
	if a.WaitRetryTime <= 0 {
		return errors.New("wait_retry_time must be positive")
	}
	return nil
}

// WaitTraceTimeout polls for the latest trace of service/operation once per
// wait_retry_time and returns when none has ended within event_timeout, or
// when forced_stop_timeout_limit has elapsed.
func WaitTraceTimeout(ctx context.Context, r *Runner, src jaeger.TraceSource, a Action) error {
	if err := checkRetry(a); err != nil {
		return err
	}
	retry := a.WaitRetryTime.Duration()
	lastEnd := r.clock.Now()
	var last *jaeger.Trace

	return r.poll(ctx, retry, a.ForcedStopTimeoutLimit.Duration(), func(now time.Time) (bool, error) {
		traces, err := src.Traces(ctx, jaeger.TraceQuery{
			Service:   a.Service,
			Operation: a.Operation,
			Limit:     1,
			StartUs:   now.Add(-retry).UnixMicro(),
		})
		if err != nil {
			return false, err
		}
		if len(traces) > 0 && len(traces[0].Spans) > 0 {
			last = &traces[0]
		}
		if last != nil {
			span := last.Spans[len(last.Spans)-1]
			lastEnd = time.UnixMicro(span.End())
		}
		idle := now.Sub(lastEnd)
		r.log.Infof("no %s/%s trace for %s (timeout %s)", a.Service, a.Operation, idle, a.EventTimeout.Duration())
		return idle > a.EventTimeout.Duration(), nil
	})
}

// WaitStreamSize polls the pending size of stream_key once per
// wait_retry_time and returns when it equals stream_size, or when
// forced_stop_timeout_limit has elapsed.
func WaitStreamSize(ctx context.Context, r *Runner, sizer streams.Sizer, a Action) error {
	if err := checkRetry(a); err != nil {
		return err
	}
	if a.StreamKey == "" {
		return errors.New("stream_key is required")
	}
	want := int64(a.StreamSize)
	return r.poll(ctx, a.WaitRetryTime.Duration(), a.ForcedStopTimeoutLimit.Duration(), func(time.Time) (bool, error) {
		size, err := sizer.PendingSize(ctx, a.StreamKey)
		if err != nil {
			return false, err
		}
		r.log.Infof("stream %s has %d pending entries, waiting for %d", a.StreamKey, size, want)
		return size == want, nil
	})
}

// RunTraceTimeout executes the actions of a trace timeout task.
func RunTraceTimeout(ctx context.Context, src jaeger.TraceSource, cfg *TraceTimeoutConfig, clock Clock) error {
	r := NewRunner(TraceTimeoutName, cfg.LoggingLevel, clock)
	r.Handle(ActionWaitTraceTimeout, func(ctx context.Context, a Action) error {
		return WaitTraceTimeout(ctx, r, src, a)
	})
	if err := r.Execute(ctx, cfg.Actions); err != nil {
		return fmt.Errorf("%s: %w", TraceTimeoutName, err)
	}
	return nil
}

// RunStreamSize executes the actions of a stream size task.
func RunStreamSize(ctx context.Context, sizer streams.Sizer, cfg *StreamSizeConfig, clock Clock) error {
	r := NewRunner(StreamSizeName, cfg.LoggingLevel, clock)
	r.Handle(ActionWaitStreamSize, func(ctx context.Context, a Action) error {
		return WaitStreamSize(ctx, r, sizer, a)
	})
	if err := r.Execute(ctx, cfg.Actions); err != nil {
		return fmt.Errorf("%s: %w", StreamSizeName, err)
	}
	return nil
}
