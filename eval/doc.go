// Package eval provides the shared evaluation machinery for benchmark runs.
//
// # Reading Guide
//
// Start with these files:
//   - metrics.go: Metrics (ordered metric name → value) and Verdict
//   - threshold.go: threshold table and VerifyThresholds
//   - predicate.go: the closed predicate grammar ("< 300", "any", {op, value})
//
// # Architecture
//
// Evaluators live in sub-packages and all follow the same shape: a pure
// Compute function that turns collaborator data into Metrics, and a Run
// function that fetches the data, computes, and calls VerifyThresholds:
//   - eval/scheduling/: worker scheduling reconstruction, extrapolation and energy aggregation
//   - eval/loadshedding/: scheduler load-shedding rate
//   - eval/servicespeed/: per-service operation speed
//   - eval/ranking/: SLR worker ranking comparison over a Redis stream
//   - eval/energy/: energy-grid readings per device
//   - eval/subaccuracy/: subscription accuracy against an annotated dataset
//
// Collaborators (eval/jaeger/ for traces, eval/streams/ for Redis) are injected
// through small interfaces so every Compute path is testable offline.
// eval/task/ holds the waits run before evaluations, and eval/controller/
// runs a whole benchmark and folds the verdicts.
package eval
