package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/streams"
)

type fakeReader struct {
	entries []streams.Entry
	err     error
	key     string
}

func (f *fakeReader) ReadAll(_ context.Context, key string) ([]streams.Entry, error) {
	f.key = key
	return f.entries, f.err
}

func event(json string) streams.Entry {
	return streams.Entry{ID: "0-1", Values: map[string]interface{}{"event": json}}
}

func TestRankingOf_FirstProfileInDocumentOrder(t *testing.T) {
	// GIVEN profiles whose keys would sort differently than they appear
	doc := `{"id": "e1", "slr_profiles": {"zeta": {"ranking_index": [2, 1]}, "alpha": {"ranking_index": [0, 1]}}}`

	ranking, err := RankingOf([]byte(doc))

	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, ranking)
}

func TestRankingOf_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":      `{`,
		"no profiles":   `{}`,
		"empty object":  `{"slr_profiles": {}}`,
		"not an object": `{"slr_profiles": [1, 2]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := RankingOf([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestComparer(t *testing.T) {
	expected := []int{0, 1, 5, 11}
	tests := []struct {
		name     string
		ranking  []int
		similar  [][]int
		wantBest bool
		wantAny  bool
	}{
		{"identical", []int{0, 1, 5, 11}, nil, false, false},
		{"tail swapped", []int{0, 1, 11, 5}, nil, false, true},
		{"best differs", []int{1, 0, 5, 11}, nil, true, true},
		{"shorter", []int{0, 1}, nil, false, true},
		{"empty", nil, nil, true, true},
		{"similar pair swap", []int{0, 1, 11, 5}, [][]int{{5, 11}}, false, false},
		{"similar best", []int{1, 0, 5, 11}, [][]int{{1, 0}}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComparer(expected, tt.similar).Compare(tt.ranking)
			assert.Equal(t, tt.wantBest, c.ContradictionOnBest, "best")
			assert.Equal(t, tt.wantAny, c.ContradictionOnAny, "any")
		})
	}
}

func TestCompute_Rates(t *testing.T) {
	// GIVEN one matching, one tail-contradicting, one best-contradicting and one broken entry
	entries := []streams.Entry{
		event(`{"slr_profiles": {"q": {"ranking_index": [0, 1, 2]}}}`),
		event(`{"slr_profiles": {"q": {"ranking_index": [0, 2, 1]}}}`),
		event(`{"slr_profiles": {"q": {"ranking_index": [2, 1, 0]}}}`),
		event(`not json`),
		{ID: "0-9", Values: map[string]interface{}{}},
	}
	cfg := &Config{StreamKey: "ranked", ExpectedRankingIndex: []int{0, 1, 2}}

	m := Compute(entries, cfg)

	total, _ := m.Value("total_events")
	best, _ := m.Value("c_rate_best")
	anyRate, _ := m.Value("c_rate_any")
	assert.Equal(t, 3.0, total)
	assert.InDelta(t, 1.0/3, best, 1e-12)
	assert.InDelta(t, 2.0/3, anyRate, 1e-12)
}

func TestCompute_NoEventsReportsZeroRates(t *testing.T) {
	m := Compute(nil, &Config{ExpectedRankingIndex: []int{0}})

	assert.Equal(t, []string{"total_events", "c_rate_best", "c_rate_any"}, m.Names())
	v, _ := m.Value("c_rate_any")
	assert.Zero(t, v)
}

func TestRun(t *testing.T) {
	reader := &fakeReader{entries: []streams.Entry{
		event(`{"slr_profiles": {"q": {"ranking_index": [0, 1]}}}`),
	}}
	cfg := &Config{
		StreamKey:            "ServiceSLRProfilesRanked",
		ExpectedRankingIndex: []int{0, 1},
		ThresholdFunctions: eval.MustParseThresholds(
			"total_events", "> 0",
			"c_rate_.*", "== 0",
		),
	}

	v, err := Run(context.Background(), reader, cfg)

	require.NoError(t, err)
	assert.Equal(t, "ServiceSLRProfilesRanked", reader.key)
	assert.True(t, v.Passed)
	assert.Len(t, v.Metrics, 3)
}

func TestRun_ReaderErrorSurfaces(t *testing.T) {
	boom := errors.New("redis down")
	cfg := &Config{StreamKey: "s", ExpectedRankingIndex: []int{0}}

	_, err := Run(context.Background(), &fakeReader{err: boom}, cfg)

	assert.ErrorIs(t, err, boom)
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&Config{ExpectedRankingIndex: []int{0}}).Validate())
	assert.Error(t, (&Config{StreamKey: "s"}).Validate())
	assert.Error(t, (&Config{StreamKey: "s", ExpectedRankingIndex: []int{0}, SimilarIndexPairs: [][]int{{1}}}).Validate())
	assert.NoError(t, (&Config{StreamKey: "s", ExpectedRankingIndex: []int{0}}).Validate())
}
