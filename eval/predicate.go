package eval

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Op is a comparison operator of the predicate grammar.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	// OpAny accepts every value. Used for catch-all report-only keys.
	OpAny Op = "any"
)

// validOps lists operators accepted by ParsePredicate, longest first so that
// "<=" is matched before "<".
var validOps = []Op{OpLessEqual, OpGreaterEqual, OpEqual, OpNotEqual, OpLess, OpGreater}

// Predicate is a boolean rule over a metric value: value <op> Threshold.
type Predicate struct {
	Op        Op
	Threshold float64
}

// ParsePredicate parses the textual form of a predicate, e.g. "< 300",
// ">=0.5" or "any".
func ParsePredicate(text string) (Predicate, error) {
	s := strings.TrimSpace(text)
	if strings.EqualFold(s, string(OpAny)) {
		return Predicate{Op: OpAny}, nil
	}
	for _, op := range validOps {
		if !strings.HasPrefix(s, string(op)) {
			continue
		}
		operand := strings.TrimSpace(strings.TrimPrefix(s, string(op)))
		threshold, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %q: bad operand %q", ErrInvalidPredicate, text, operand)
		}
		return Predicate{Op: op, Threshold: threshold}, nil
	}
	return Predicate{}, fmt.Errorf("%w: %q", ErrInvalidPredicate, text)
}

// Eval applies the predicate to a value.
func (p Predicate) Eval(value float64) bool {
	switch p.Op {
	case OpLess:
		return value < p.Threshold
	case OpLessEqual:
		return value <= p.Threshold
	case OpGreater:
		return value > p.Threshold
	case OpGreaterEqual:
		return value >= p.Threshold
	case OpEqual:
		return value == p.Threshold
	case OpNotEqual:
		return value != p.Threshold
	case OpAny:
		return true
	}
	return false
}

// String returns the canonical source text, used for reports.
func (p Predicate) String() string {
	if p.Op == OpAny {
		return string(OpAny)
	}
	return fmt.Sprintf("%s %s", p.Op, strconv.FormatFloat(p.Threshold, 'g', -1, 64))
}

// predicateNode is the structured YAML/JSON form: {op: "<", value: 300}.
type predicateNode struct {
	Op    string   `yaml:"op"`
	Value *float64 `yaml:"value"`
}

// UnmarshalYAML accepts either the textual or the structured form.
func (p *Predicate) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParsePredicate(node.Value)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case yaml.MappingNode:
		var pn predicateNode
		if err := node.Decode(&pn); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPredicate, err)
		}
		if Op(pn.Op) == OpAny {
			*p = Predicate{Op: OpAny}
			return nil
		}
		if pn.Value == nil {
			return fmt.Errorf("%w: op %q without value", ErrInvalidPredicate, pn.Op)
		}
		parsed, err := ParsePredicate(pn.Op + " " + strconv.FormatFloat(*pn.Value, 'g', -1, 64))
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}
	return fmt.Errorf("%w: line %d: expected string or mapping", ErrInvalidPredicate, node.Line)
}

// MarshalYAML writes the textual form.
func (p Predicate) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}
