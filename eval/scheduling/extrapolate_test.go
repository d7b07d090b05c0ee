package scheduling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
)

func TestExtrapolate_StartsAfterLastFinishedEnd(t *testing.T) {
	// GIVEN workerA finished an event ending at T_f and has a pending event
	// scheduled before T_f
	const tf = 1_000_000.0
	queue := []Event{{TraceID: "p", Worker: workerA, ScheduledTime: 400_000}}
	x := &Extrapolator{Profiles: testProfiles()}

	// WHEN extrapolated
	require.NoError(t, x.Extrapolate(workerA, queue, Anchor{End: tf, Valid: true}))

	// THEN the pending event starts exactly GAP after T_f and lasts 1/throughput
	require.NotNil(t, queue[0].Timing)
	assert.Equal(t, tf+InterEventGap, queue[0].Timing.Start)
	assert.GreaterOrEqual(t, queue[0].Timing.Start, tf+InterEventGap)
	assert.Equal(t, 500_000.0, queue[0].Timing.Duration)
	assert.False(t, queue[0].Finished)
}

func TestExtrapolate_ScheduledAfterAnchorEndsBeforeScheduling(t *testing.T) {
	// GIVEN workerA finished its last event at 0.7s and a pending event
	// was scheduled later, at 9.1s, after publishing at 9.0s
	queue := []Event{{TraceID: "late", Worker: workerA, InitTime: 9_000_000, ScheduledTime: 9_100_000}}
	x := &Extrapolator{Profiles: testProfiles()}

	// WHEN extrapolated from the anchor
	require.NoError(t, x.Extrapolate(workerA, queue, Anchor{End: 700_000, Valid: true}))

	// THEN it still chains from the anchor, ending before it was scheduled
	assert.Equal(t, 700_000+InterEventGap, queue[0].Timing.Start)
	assert.Equal(t, 1_200_004.0, queue[0].Timing.End())
	assert.Less(t, queue[0].Timing.End(), float64(queue[0].ScheduledTime))

	// AND its result row reports a negative latency
	r, err := ComputeResult(queue[0], testProfiles()[workerA], false)
	require.NoError(t, err)
	assert.InDelta(t, -7.799996, r.Latency, 1e-9)
}

func TestExtrapolate_ChainsWithoutOverlapForOutOfOrderInput(t *testing.T) {
	// GIVEN a queue listed out of schedule order
	queue := []Event{
		{TraceID: "c", Worker: workerB, ScheduledTime: 3_000},
		{TraceID: "a", Worker: workerB, ScheduledTime: 1_000},
		{TraceID: "b", Worker: workerB, ScheduledTime: 2_000},
	}
	x := &Extrapolator{Profiles: testProfiles()}

	// WHEN extrapolated
	require.NoError(t, x.Extrapolate(workerB, queue, Anchor{End: 10_000, Valid: true}))

	// THEN events are processed in schedule order and never overlap
	assert.Equal(t, []string{"a", "b", "c"}, []string{queue[0].TraceID, queue[1].TraceID, queue[2].TraceID})
	for i := 1; i < len(queue); i++ {
		assert.GreaterOrEqual(t, queue[i].Timing.Start, queue[i-1].Timing.End())
		assert.Equal(t, queue[i-1].Timing.End()+InterEventGap, queue[i].Timing.Start)
	}
}

func TestExtrapolate_NoFinishedEventsSeedsFromScheduledTime(t *testing.T) {
	// GIVEN a worker with no finished events
	queue := []Event{
		{TraceID: "a", Worker: workerC, ScheduledTime: 2_000_000},
		{TraceID: "b", Worker: workerC, ScheduledTime: 2_100_000},
	}
	x := &Extrapolator{Profiles: testProfiles()}

	// WHEN extrapolated without an anchor
	require.NoError(t, x.Extrapolate(workerC, queue, Anchor{}))

	// THEN the first starts at scheduled + processing, the next chains off it
	assert.Equal(t, 3_000_000.0, queue[0].Timing.Start)
	assert.Equal(t, 4_000_000.0, queue[0].Timing.End())
	assert.Equal(t, 4_000_000.0+InterEventGap, queue[1].Timing.Start)
}

func TestExtrapolate_VariationShiftsThroughput(t *testing.T) {
	queue := []Event{{TraceID: "a", Worker: workerA, ScheduledTime: 0, Variation: 1}}
	x := &Extrapolator{Profiles: testProfiles(), ApplyVariation: true}

	require.NoError(t, x.Extrapolate(workerA, queue, Anchor{End: 0, Valid: true}))

	// throughput 2 + 0.5*1 = 2.5 events/s
	assert.InDelta(t, 400_000.0, queue[0].Timing.Duration, 1e-6)
}

func TestExtrapolate_VariationIgnoredWhenDisabled(t *testing.T) {
	queue := []Event{{TraceID: "a", Worker: workerA, Variation: 1}}
	x := &Extrapolator{Profiles: testProfiles()}

	require.NoError(t, x.Extrapolate(workerA, queue, Anchor{Valid: true}))

	assert.Equal(t, 500_000.0, queue[0].Timing.Duration)
}

func TestExtrapolate_Errors(t *testing.T) {
	profiles := testProfiles()
	profiles["slow"] = WorkerProfile{Throughput: 1, ThroughputStd: 2}

	tests := []struct {
		name      string
		worker    string
		queue     []Event
		variation bool
		want      error
	}{
		{"empty queue", workerA, nil, false, eval.ErrEmptyPopulation},
		{"unknown worker", "ghost", []Event{{TraceID: "a"}}, false, eval.ErrUnknownWorker},
		{"non-positive throughput", "slow", []Event{{TraceID: "a", Variation: -1}}, true, eval.ErrInvalidProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := &Extrapolator{Profiles: profiles, ApplyVariation: tt.variation}
			err := x.Extrapolate(tt.worker, tt.queue, Anchor{Valid: true})
			if !errors.Is(err, tt.want) {
				t.Errorf("Extrapolate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAssignVariation_DeterministicPerSeed(t *testing.T) {
	draw := func(seed int64) []float64 {
		tl := Reconstruct(testTraces(), testClassifier(), []string{workerA, workerB, workerC})
		AssignVariation(tl, eval.NewPartitionedRNG(eval.NewRunKey(seed)))
		var out []float64
		for _, ev := range tl.Finished {
			out = append(out, ev.Variation)
		}
		for _, w := range tl.Workers() {
			for _, ev := range tl.Pending[w] {
				out = append(out, ev.Variation)
			}
		}
		return out
	}

	first, second := draw(42), draw(42)
	assert.Equal(t, first, second)
	for _, d := range first {
		assert.GreaterOrEqual(t, d, -1.0)
		assert.LessOrEqual(t, d, 1.0)
	}
}
