// Package ranking compares the worker rankings published on a stream against
// an expected ranking.
package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/streams"
)

// Name is the evaluation module name used in benchmark configurations.
const Name = "slr_worker_ranking"

// Config is the kwargs block of the ranking evaluation.
type Config struct {
	RedisAddress         string           `yaml:"redis_address"`
	RedisPort            string           `yaml:"redis_port"`
	StreamKey            string           `yaml:"stream_key"`
	ExpectedRankingIndex []int            `yaml:"expected_ranking_index"`
	SimilarIndexPairs    [][]int          `yaml:"similar_index_pairs,omitempty"`
	ThresholdFunctions   *eval.Thresholds `yaml:"threshold_functions"`
	LoggingLevel         string           `yaml:"logging_level,omitempty"`
}

// Validate checks required keys.
func (c *Config) Validate() error {
	if c.StreamKey == "" {
		return errors.New("stream_key is required")
	}
	if len(c.ExpectedRankingIndex) == 0 {
		return errors.New("expected_ranking_index must not be empty")
	}
	for i, p := range c.SimilarIndexPairs {
		if len(p) != 2 {
			return fmt.Errorf("similar_index_pairs[%d] must hold two indexes, got %d", i, len(p))
		}
	}
	if c.ThresholdFunctions == nil {
		c.ThresholdFunctions = eval.NewThresholds()
	}
	return nil
}

// Comparison is the outcome for one ranked event.
type Comparison struct {
	RankingIndex        []int
	ContradictionOnBest bool
	ContradictionOnAny  bool
}

// Comparer checks rankings against the expected one. Two indexes listed as a
// similar pair are interchangeable at any position.
type Comparer struct {
	expected []int
	similar  map[[2]int]bool
}

// NewComparer builds a Comparer.
func NewComparer(expected []int, similarPairs [][]int) *Comparer {
	c := &Comparer{expected: expected, similar: make(map[[2]int]bool, 2*len(similarPairs))}
	for _, p := range similarPairs {
		if len(p) != 2 {
			continue
		}
		c.similar[[2]int{p[0], p[1]}] = true
		c.similar[[2]int{p[1], p[0]}] = true
	}
	return c
}

// Compare returns the contradictions of ranking on its best entry and on
// the full ranking.
func (c *Comparer) Compare(ranking []int) Comparison {
	return Comparison{
		RankingIndex:        ranking,
		ContradictionOnBest: c.contradicts(ranking, true),
		ContradictionOnAny:  c.contradicts(ranking, false),
	}
}

func (c *Comparer) contradicts(ranking []int, bestOnly bool) bool {
	got, want := ranking, c.expected
	if bestOnly {
		got, want = head(got), head(want)
	}
	if len(got) != len(want) {
		return true
	}
	for i := range want {
		if got[i] != want[i] && !c.similar[[2]int{got[i], want[i]}] {
			return true
		}
	}
	return false
}

func head(s []int) []int {
	if len(s) > 1 {
		return s[:1]
	}
	return s
}

// RankingOf extracts the ranking_index of the first SLR profile, in document
// order, of a ranked event.
func RankingOf(eventJSON []byte) ([]int, error) {
	var event struct {
		SLRProfiles json.RawMessage `json:"slr_profiles"`
	}
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if len(event.SLRProfiles) == 0 {
		return nil, errors.New("event has no slr_profiles")
	}

	dec := json.NewDecoder(bytes.NewReader(event.SLRProfiles))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decoding slr_profiles: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("slr_profiles is not an object")
	}
	if !dec.More() {
		return nil, errors.New("slr_profiles is empty")
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decoding slr_profiles key: %w", err)
	}
	var profile struct {
		RankingIndex []int `json:"ranking_index"`
	}
	if err := dec.Decode(&profile); err != nil {
		return nil, fmt.Errorf("decoding first slr profile: %w", err)
	}
	return profile.RankingIndex, nil
}

// Compute compares every entry carrying an event and returns total_events,
// c_rate_best and c_rate_any. Entries that cannot be decoded are logged and
// skipped. With no events both rates are 0.
func Compute(entries []streams.Entry, cfg *Config) eval.Metrics {
	log := eval.Logger(Name, cfg.LoggingLevel)
	cmp := NewComparer(cfg.ExpectedRankingIndex, cfg.SimilarIndexPairs)

	var total, onBest, onAny int
	for _, e := range entries {
		raw, ok := e.Field("event")
		if !ok {
			raw = "{}"
		}
		ranking, err := RankingOf([]byte(raw))
		if err != nil {
			log.Errorf("error processing entry %s: %v", e.ID, err)
			continue
		}
		c := cmp.Compare(ranking)
		total++
		if c.ContradictionOnBest {
			onBest++
		}
		if c.ContradictionOnAny {
			onAny++
		}
	}

	var m eval.Metrics
	m.Add("total_events", float64(total))
	rateBest, rateAny := 0.0, 0.0
	if total != 0 {
		rateBest = float64(onBest) / float64(total)
		rateAny = float64(onAny) / float64(total)
	}
	m.Add("c_rate_best", rateBest)
	m.Add("c_rate_any", rateAny)
	return m
}

// Run reads the stream and verifies the contradiction rates.
func Run(ctx context.Context, reader streams.Reader, cfg *Config) (*eval.Verdict, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	eval.Logger(Name, cfg.LoggingLevel).Debugf("comparing rankings on %s against %v", cfg.StreamKey, cfg.ExpectedRankingIndex)
	entries, err := reader.ReadAll(ctx, cfg.StreamKey)
	if err != nil {
		return nil, err
	}
	return eval.VerifyThresholds(Compute(entries, cfg), cfg.ThresholdFunctions)
}
