package eval

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestVerifyThresholds_ExactKeyWinsOverEarlierPattern(t *testing.T) {
	// GIVEN a catch-all pattern listed before an exact key
	th := MustParseThresholds(
		".*", "< 300",
		"real_energy_avg", "< 75",
	)
	metrics := Metrics{{Name: "real_energy_avg", Value: 100}}

	// WHEN verified
	v, err := VerifyThresholds(metrics, th)
	require.NoError(t, err)

	// THEN the exact predicate is used, not the earlier catch-all
	assert.Equal(t, "< 75", v.Metrics["real_energy_avg"].Threshold)
	assert.False(t, v.Metrics["real_energy_avg"].Passed)
	assert.False(t, v.Passed)
}

func TestVerifyThresholds_FirstMatchingPatternInConfigOrder(t *testing.T) {
	th := MustParseThresholds(
		"_avg$", "< 1",
		".*", "any",
	)
	metrics := Metrics{
		{Name: "latency_avg", Value: 0.5},
		{Name: "latency_std", Value: 99},
	}

	v, err := VerifyThresholds(metrics, th)
	require.NoError(t, err)

	assert.Equal(t, "< 1", v.Metrics["latency_avg"].Threshold)
	assert.Equal(t, "any", v.Metrics["latency_std"].Threshold)
	assert.True(t, v.Passed)
}

func TestVerifyThresholds_PatternIsSearchedNotAnchored(t *testing.T) {
	th := MustParseThresholds("process_data_event", "< 0.05")
	v, err := VerifyThresholds(Metrics{{Name: "Scheduler_process_data_event_avg", Value: 0.01}}, th)
	require.NoError(t, err)
	assert.True(t, v.Passed)
}

func TestVerifyThresholds_NoPredicate_IsConfigurationError(t *testing.T) {
	th := MustParseThresholds("latency_avg", "< 10")
	_, err := VerifyThresholds(Metrics{{Name: "throughput", Value: 3}}, th)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPredicate))
	assert.Contains(t, err.Error(), "throughput")
}

func TestVerifyThresholds_NoShortCircuit_AllMetricsReported(t *testing.T) {
	// GIVEN a first metric that fails
	th := MustParseThresholds(".*", "< 10")
	metrics := Metrics{
		{Name: "a", Value: 50},
		{Name: "b", Value: 1},
		{Name: "c", Value: 2},
	}

	v, err := VerifyThresholds(metrics, th)
	require.NoError(t, err)

	// THEN every metric still appears in the report
	assert.Len(t, v.Metrics, 3)
	assert.False(t, v.Passed)
	assert.Equal(t, []string{"a"}, v.Failed())
}

func TestVerifyThresholds_PassedIffAllPassed(t *testing.T) {
	th := MustParseThresholds(".*", ">= 0")
	tests := []struct {
		name   string
		values []float64
		want   bool
	}{
		{"all pass", []float64{0, 1, 2}, true},
		{"one fails", []float64{0, -1, 2}, false},
		{"all fail", []float64{-3, -1, -2}, false},
		{"empty", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Metrics
			for i, v := range tt.values {
				m.Add(string(rune('a'+i)), v)
			}
			v, err := VerifyThresholds(m, th)
			require.NoError(t, err)
			all := true
			for _, mv := range v.Metrics {
				all = all && mv.Passed
			}
			assert.Equal(t, tt.want, v.Passed)
			assert.Equal(t, all, v.Passed)
		})
	}
}

func TestThresholds_UnmarshalYAML_KeepsOrderAndBothForms(t *testing.T) {
	src := `
".*": "any"
latency_avg:
  op: "<"
  value: 300
throughput: ">= 2.5"
`
	var th Thresholds
	require.NoError(t, yaml.Unmarshal([]byte(src), &th))

	assert.Equal(t, []string{".*", "latency_avg", "throughput"}, th.Keys())
	got, ok := th.Lookup("latency_avg")
	require.True(t, ok)
	assert.Equal(t, Predicate{Op: OpLess, Threshold: 300}, got.Predicate)
}

func TestThresholds_UnmarshalJSON_ThroughYAMLDecoder(t *testing.T) {
	src := `{"c_rate_best": "== 0", "c_rate_any": "<= 0.1", ".*": "any"}`
	var th Thresholds
	require.NoError(t, yaml.Unmarshal([]byte(src), &th))
	assert.Equal(t, []string{"c_rate_best", "c_rate_any", ".*"}, th.Keys())
}

func TestThresholds_UnmarshalYAML_RejectsCode(t *testing.T) {
	var th Thresholds
	err := yaml.Unmarshal([]byte(`latency_avg: "lambda x: x < 10"`), &th)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPredicate))
}

func TestThresholds_InvalidPatternKey_ExactOnly(t *testing.T) {
	th := MustParseThresholds("weird(key", "< 1")
	_, ok := th.Lookup("weird(key")
	assert.True(t, ok)
	_, ok = th.Lookup("other")
	assert.False(t, ok)
}

func TestThresholds_MarshalYAML_RoundTrip(t *testing.T) {
	th := MustParseThresholds("b", "< 1", "a", "any")
	out, err := yaml.Marshal(th)
	require.NoError(t, err)

	var back Thresholds
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, th.Keys(), back.Keys())
}
