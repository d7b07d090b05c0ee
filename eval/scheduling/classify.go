package scheduling

import (
	"sort"

	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

const (
	DefaultSchedulerService   = "Scheduler"
	DefaultSchedulerOperation = "process_data_event"
	DefaultDestinationTagKey  = "message_bus.destination"
)

// ClassifierConfig names the spans that mark scheduling and processing.
type ClassifierConfig struct {
	SchedulerService    string   // process name of the scheduler
	PreConsumeOperation string   // scheduler operation that writes to a worker stream
	WorkerServiceTypes  []string // service names of workers
	ConsumeOperation    string   // worker operation that consumes the event
	DestinationTagKey   string   // tag carrying the destination worker
}

// Classifier extracts the schedule/consume pair of a trace.
type Classifier struct {
	cfg         ClassifierConfig
	workerTypes map[string]bool
}

// NewClassifier builds a Classifier. Empty SchedulerService and
// DestinationTagKey fall back to the defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.SchedulerService == "" {
		cfg.SchedulerService = DefaultSchedulerService
	}
	if cfg.DestinationTagKey == "" {
		cfg.DestinationTagKey = DefaultDestinationTagKey
	}
	types := make(map[string]bool, len(cfg.WorkerServiceTypes))
	for _, t := range cfg.WorkerServiceTypes {
		types[t] = true
	}
	return &Classifier{cfg: cfg, workerTypes: types}
}

// Classify returns the event carried by a trace, or false when the trace has
// no scheduling span with a destination worker. Spans whose process is not
// declared by the trace are ignored.
func (c *Classifier) Classify(tr jaeger.Trace) (*Event, bool) {
	if len(tr.Spans) == 0 {
		return nil, false
	}
	services := tr.ServiceNames()

	spans := make([]jaeger.Span, len(tr.Spans))
	copy(spans, tr.Spans)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].StartTime < spans[j].StartTime })

	ev := &Event{TraceID: tr.TraceID, InitTime: spans[0].StartTime}
	for _, span := range spans {
		service, ok := services[span.ProcessID]
		if !ok {
			continue
		}
		if service == c.cfg.SchedulerService {
			if span.OperationName == c.cfg.PreConsumeOperation {
				// A later scheduling span re-targets the event.
				ev.Worker, _ = span.Tag(c.cfg.DestinationTagKey)
				ev.ScheduledTime = span.End()
			}
			continue
		}
		if c.workerTypes[service] && span.OperationName == c.cfg.ConsumeOperation {
			ev.Timing = &Timing{Start: float64(span.StartTime), Duration: float64(span.Duration)}
			ev.Finished = true
			break
		}
	}

	if ev.Worker == "" {
		return nil, false
	}
	return ev, true
}
