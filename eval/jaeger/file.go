package jaeger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileScheme prefixes a trace host that names a saved response file.
const FileScheme = "file://"

// FileSource serves traces from a saved /api/traces response body, applying
// the service, operation, tag, start and limit filters of a query the way
// the backend does.
type FileSource struct {
	Path string
}

// Open returns a FileSource for a file:// host and an HTTP client otherwise.
func Open(host string) Source {
	if strings.HasPrefix(host, FileScheme) {
		return FileSource{Path: strings.TrimPrefix(host, FileScheme)}
	}
	return NewClient(host)
}

// LoadTraces reads a saved /api/traces response body.
func LoadTraces(path string) ([]Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading traces file: %w", err)
	}
	var resp TracesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing traces file %s: %w", path, err)
	}
	return resp.Data, nil
}

// Traces returns the saved traces matching q. An empty q.Service returns
// every trace.
func (f FileSource) Traces(_ context.Context, q TraceQuery) ([]Trace, error) {
	traces, err := LoadTraces(f.Path)
	if err != nil {
		return nil, err
	}
	if q.Service == "" {
		return traces, nil
	}
	var out []Trace
	for _, tr := range traces {
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		if tr.matches(q) {
			out = append(out, tr)
		}
	}
	return out, nil
}

// Services returns the sorted service names seen in the saved traces.
func (f FileSource) Services(_ context.Context) ([]string, error) {
	traces, err := LoadTraces(f.Path)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, tr := range traces {
		for _, p := range tr.Processes {
			if !seen[p.ServiceName] {
				seen[p.ServiceName] = true
				names = append(names, p.ServiceName)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
