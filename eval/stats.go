package eval

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Summary holds the mean and sample standard deviation of a population.
type Summary struct {
	Mean  float64
	Std   float64
	Count int
}

// Summarize computes mean and sample standard deviation (n-1 denominator).
// A single-sample population has Std 0. An empty population returns
// ErrEmptyPopulation rather than NaN.
func Summarize(name string, values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, fmt.Errorf("%w: %s", ErrEmptyPopulation, name)
	}
	if len(values) == 1 {
		return Summary{Mean: values[0], Count: 1}, nil
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Summary{Mean: mean, Std: std, Count: len(values)}, nil
}

// AddSummary appends <name>_avg and <name>_std.
func (m *Metrics) AddSummary(name string, s Summary) {
	m.Add(name+"_avg", s.Mean)
	m.Add(name+"_std", s.Std)
}

// Rate returns count/total, failing on an empty denominator instead of
// producing Inf or NaN.
func Rate(name string, count, total float64) (float64, error) {
	if total == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyPopulation, name)
	}
	return count / total, nil
}
