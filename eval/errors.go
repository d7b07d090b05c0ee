package eval

import "errors"

var (
	// ErrNoPredicate is returned when a metric has neither an exact nor a
	// pattern threshold. It is a configuration error.
	ErrNoPredicate = errors.New("no threshold predicate found")

	// ErrInvalidPredicate is returned for predicate text outside the grammar.
	ErrInvalidPredicate = errors.New("invalid threshold predicate")

	// ErrEmptyPopulation is returned when an aggregate is requested over zero
	// samples. It replaces NaN/Inf results.
	ErrEmptyPopulation = errors.New("empty population")

	// ErrUnknownWorker is returned when an event references a worker that has
	// no configured profile.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrInvalidProfile is returned when a worker profile cannot produce a
	// positive processing rate.
	ErrInvalidProfile = errors.New("invalid worker profile")
)
