// Package jaeger holds the subset of the Jaeger query API consumed by the
// evaluators: the trace/span JSON model and an HTTP client for it.
package jaeger

import "fmt"

// TracesResponse is the envelope returned by /api/traces.
type TracesResponse struct {
	Data   []Trace    `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

// ServicesResponse is the envelope returned by /api/services.
type ServicesResponse struct {
	Data []string `json:"data"`
}

// APIError is an error entry reported by the query service.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Trace is one logical event's journey across services.
type Trace struct {
	TraceID   string             `json:"traceID"`
	Spans     []Span             `json:"spans"`
	Processes map[string]Process `json:"processes"`
}

// Span is one timed operation of a trace. Times are in microseconds.
type Span struct {
	TraceID       string     `json:"traceID"`
	SpanID        string     `json:"spanID"`
	OperationName string     `json:"operationName"`
	ProcessID     string     `json:"processID"`
	StartTime     int64      `json:"startTime"`
	Duration      int64      `json:"duration"`
	Tags          []KeyValue `json:"tags"`
}

// End returns StartTime + Duration.
func (s Span) End() int64 {
	return s.StartTime + s.Duration
}

// Tag returns the value of the first tag with the given key, formatted as a
// string, and whether it was present.
func (s Span) Tag(key string) (string, bool) {
	for _, kv := range s.Tags {
		if kv.Key == key {
			return kv.String(), true
		}
	}
	return "", false
}

// Process identifies the service that emitted a span.
type Process struct {
	ServiceName string     `json:"serviceName"`
	Tags        []KeyValue `json:"tags,omitempty"`
}

// KeyValue is a span or process tag.
type KeyValue struct {
	Key   string      `json:"key"`
	Type  string      `json:"type,omitempty"`
	Value interface{} `json:"value"`
}

// String formats the tag value.
func (kv KeyValue) String() string {
	switch v := kv.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ServiceNames maps process ids to service names.
func (t Trace) ServiceNames() map[string]string {
	names := make(map[string]string, len(t.Processes))
	for pid, p := range t.Processes {
		names[pid] = p.ServiceName
	}
	return names
}

// HasOperation reports whether any span of the trace has the operation name.
func (t Trace) HasOperation(operation string) bool {
	for _, s := range t.Spans {
		if s.OperationName == operation {
			return true
		}
	}
	return false
}

// ProcessIDFor returns the process id of the named service within the trace.
func (t Trace) ProcessIDFor(service string) (string, bool) {
	for pid, p := range t.Processes {
		if p.ServiceName == service {
			return pid, true
		}
	}
	return "", false
}

// matches reports whether one span of the trace satisfies q: emitted by
// q.Service, named q.Operation when set, carrying every tag of q.Tags and
// starting at or after q.StartUs.
func (t Trace) matches(q TraceQuery) bool {
	names := t.ServiceNames()
	for _, s := range t.Spans {
		if names[s.ProcessID] != q.Service {
			continue
		}
		if q.Operation != "" && s.OperationName != q.Operation {
			continue
		}
		if s.StartTime < q.StartUs {
			continue
		}
		if spanHasTags(s, q.Tags) {
			return true
		}
	}
	return false
}

func spanHasTags(s Span, tags map[string]string) bool {
	for k, want := range tags {
		if got, ok := s.Tag(k); !ok || got != want {
			return false
		}
	}
	return true
}
