package eval

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Threshold is one entry of a threshold table. Key is either a metric name
// or a regular expression searched in metric names.
type Threshold struct {
	Key       string
	Predicate Predicate
	pattern   *regexp.Regexp // nil if Key is not a valid expression
}

// Thresholds is an ordered threshold table. Entry order is the configuration
// order and decides precedence among pattern keys.
type Thresholds struct {
	entries []Threshold
	byKey   map[string]int
}

// NewThresholds builds a table from entries in precedence order.
func NewThresholds(entries ...Threshold) *Thresholds {
	t := &Thresholds{byKey: make(map[string]int, len(entries))}
	for _, e := range entries {
		t.Set(e.Key, e.Predicate)
	}
	return t
}

// MustParseThresholds builds a table from key/predicate-text pairs. It panics
// on invalid input and is intended for tests and static defaults.
func MustParseThresholds(pairs ...string) *Thresholds {
	if len(pairs)%2 != 0 {
		panic("MustParseThresholds: odd number of arguments")
	}
	t := NewThresholds()
	for i := 0; i < len(pairs); i += 2 {
		p, err := ParsePredicate(pairs[i+1])
		if err != nil {
			panic(err)
		}
		t.Set(pairs[i], p)
	}
	return t
}

// Set adds or replaces the predicate for key. A replaced key keeps its position.
func (t *Thresholds) Set(key string, p Predicate) {
	if t.byKey == nil {
		t.byKey = make(map[string]int)
	}
	entry := Threshold{Key: key, Predicate: p}
	if re, err := regexp.Compile(key); err == nil {
		entry.pattern = re
	} else {
		logrus.Debugf("threshold key %q is not a valid pattern; exact match only: %v", key, err)
	}
	if i, ok := t.byKey[key]; ok {
		t.entries[i] = entry
		return
	}
	t.byKey[key] = len(t.entries)
	t.entries = append(t.entries, entry)
}

// Len returns the number of entries.
func (t *Thresholds) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Keys returns the keys in precedence order.
func (t *Thresholds) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, len(t.entries))
	for i, e := range t.entries {
		keys[i] = e.Key
	}
	return keys
}

// Lookup finds the threshold for a metric: an exact key wins; otherwise the
// first key whose pattern matches anywhere in the name.
func (t *Thresholds) Lookup(metric string) (Threshold, bool) {
	if t == nil {
		return Threshold{}, false
	}
	if i, ok := t.byKey[metric]; ok {
		return t.entries[i], true
	}
	for _, e := range t.entries {
		if e.pattern != nil && e.pattern.MatchString(metric) {
			return e, true
		}
	}
	return Threshold{}, false
}

// UnmarshalYAML decodes a mapping of key → predicate, keeping key order.
// JSON configuration decodes through the same path.
func (t *Thresholds) UnmarshalYAML(node *yaml.Node) error {
	*t = Thresholds{byKey: make(map[string]int)}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("threshold_functions: line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var p Predicate
		if err := valueNode.Decode(&p); err != nil {
			return fmt.Errorf("threshold %q: %w", keyNode.Value, err)
		}
		t.Set(keyNode.Value, p)
	}
	return nil
}

// MarshalYAML writes the table as an ordered mapping.
func (t Thresholds) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range t.entries {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Predicate.String()},
		)
	}
	return node, nil
}

// VerifyThresholds checks every metric against its predicate. All metrics are
// evaluated and reported even after one fails. A metric without any matching
// threshold is a configuration error and aborts verification.
func VerifyThresholds(metrics Metrics, thresholds *Thresholds) (*Verdict, error) {
	verdict := &Verdict{
		Passed:  true,
		Metrics: make(map[string]MetricVerdict, len(metrics)),
	}
	for _, m := range metrics {
		th, ok := thresholds.Lookup(m.Name)
		if !ok {
			return nil, fmt.Errorf("%w for metric %q", ErrNoPredicate, m.Name)
		}
		passed := th.Predicate.Eval(m.Value)
		verdict.Metrics[m.Name] = MetricVerdict{
			Value:     m.Value,
			Threshold: th.Predicate.String(),
			Passed:    passed,
		}
		if !passed {
			verdict.Passed = false
		}
	}
	return verdict, nil
}
