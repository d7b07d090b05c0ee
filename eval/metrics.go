package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Metric is one named numeric result of an evaluation.
type Metric struct {
	Name  string
	Value float64
}

// Metrics is an ordered metric set. Order is the order metrics were added,
// which is also the order they are verified and reported in.
type Metrics []Metric

// Add appends a metric. Adding an existing name replaces its value in place.
func (m *Metrics) Add(name string, value float64) {
	for i := range *m {
		if (*m)[i].Name == name {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Metric{Name: name, Value: value})
}

// Value returns the value of the named metric.
func (m Metrics) Value(name string) (float64, bool) {
	for _, metric := range m {
		if metric.Name == name {
			return metric.Value, true
		}
	}
	return 0, false
}

// Names returns metric names in insertion order.
func (m Metrics) Names() []string {
	names := make([]string, len(m))
	for i, metric := range m {
		names[i] = metric.Name
	}
	return names
}

// MarshalJSON writes the metrics as a JSON object, keeping insertion order.
func (m Metrics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, metric := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(metric.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(metric.Value)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", metric.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MetricVerdict is the threshold outcome for a single metric.
type MetricVerdict struct {
	Value     float64 `json:"value"`
	Threshold string  `json:"threshold"`
	Passed    bool    `json:"passed"`
}

// Verdict is the outcome of verifying a metric set against a threshold table.
// Passed is the logical AND of every per-metric verdict.
type Verdict struct {
	Passed  bool                     `json:"passed"`
	Metrics map[string]MetricVerdict `json:"metrics,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// FailedVerdict builds the verdict reported for an evaluation that could not
// complete.
func FailedVerdict(err error) *Verdict {
	return &Verdict{Passed: false, Error: err.Error()}
}

// Failed returns the names of metrics that did not pass, sorted by name.
func (v *Verdict) Failed() []string {
	var failed []string
	for name, mv := range v.Metrics {
		if !mv.Passed {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// MarshalJSON writes the verdict as one flat object: "passed", then every
// metric verdict keyed by metric name in name order, then "error" when set.
func (v Verdict) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"passed":`)
	if v.Passed {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	names := make([]string, 0, len(v.Metrics))
	for name := range v.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "passed" || name == "error" {
			return nil, fmt.Errorf("metric name %q collides with a verdict key", name)
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(v.Metrics[name])
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", name, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	if v.Error != "" {
		msg, err := json.Marshal(v.Error)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"error":`)
		buf.Write(msg)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat object written by MarshalJSON.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*v = Verdict{}
	for key, raw := range fields {
		var err error
		switch key {
		case "passed":
			err = json.Unmarshal(raw, &v.Passed)
		case "error":
			err = json.Unmarshal(raw, &v.Error)
		default:
			var mv MetricVerdict
			if err = json.Unmarshal(raw, &mv); err == nil {
				if v.Metrics == nil {
					v.Metrics = make(map[string]MetricVerdict)
				}
				v.Metrics[key] = mv
			}
		}
		if err != nil {
			return fmt.Errorf("verdict key %q: %w", key, err)
		}
	}
	return nil
}
