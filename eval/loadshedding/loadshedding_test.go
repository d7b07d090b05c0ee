package loadshedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

type fakeSource struct {
	traces []jaeger.Trace
	got    jaeger.TraceQuery
}

func (f *fakeSource) Traces(_ context.Context, q jaeger.TraceQuery) ([]jaeger.Trace, error) {
	f.got = q
	return f.traces, nil
}

func trace(ops ...string) jaeger.Trace {
	tr := jaeger.Trace{Processes: map[string]jaeger.Process{"p1": {ServiceName: "Scheduler"}}}
	for _, op := range ops {
		tr.Spans = append(tr.Spans, jaeger.Span{OperationName: op, ProcessID: "p1"})
	}
	return tr
}

func TestCompute_Rate(t *testing.T) {
	traces := []jaeger.Trace{
		trace("process_data_event", ShedOperation),
		trace("process_data_event"),
		trace("process_data_event"),
		trace("process_data_event", ShedOperation, ShedOperation),
	}

	m, err := Compute(traces)
	require.NoError(t, err)

	rate, _ := m.Value("load_shedding_rate")
	points, _ := m.Value("data_points")
	assert.Equal(t, 0.5, rate)
	assert.Equal(t, 4.0, points)
}

func TestCompute_NoTraces(t *testing.T) {
	_, err := Compute(nil)
	assert.ErrorIs(t, err, eval.ErrEmptyPopulation)
}

func TestRun(t *testing.T) {
	src := &fakeSource{traces: []jaeger.Trace{trace("process_data_event", ShedOperation), trace("process_data_event")}}
	cfg := &Config{ThresholdFunctions: eval.MustParseThresholds(
		"load_shedding_rate", "< 0.2835",
		"data_points", "< 2.2",
	)}

	v, err := Run(context.Background(), src, cfg)

	require.NoError(t, err)
	assert.Equal(t, "Scheduler", src.got.Service)
	assert.Equal(t, "process_data_event", src.got.Operation)
	assert.False(t, v.Passed)
	assert.Equal(t, []string{"load_shedding_rate"}, v.Failed())
}
