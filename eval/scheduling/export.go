package scheduling

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Export file names inside a results directory.
const (
	HeaderFile          = "results_header.yaml"
	FinishedFile        = "events_results.csv"
	PendingFile         = "non_proc_events_results.csv"
	AllEventsFile       = "all_events_results.csv"
	PendingByWorkerFile = "non_processed_events.json"

	ResultsVersion = 1
)

// ResultsHeader captures what is needed to re-aggregate exported tables.
type ResultsHeader struct {
	Version                    int                      `yaml:"results_version"`
	TimeUnit                   string                   `yaml:"time_unit"`
	CreatedAt                  string                   `yaml:"created_at,omitempty"`
	ExperimentTime             float64                  `yaml:"experiment_time"`
	TotalTraces                int                      `yaml:"total_traces"`
	Seed                       int64                    `yaml:"seed"`
	ApplyWorkerConfigVariation bool                     `yaml:"apply_worker_config_variation"`
	Workers                    map[string]WorkerProfile `yaml:"workers"`
}

// ExportedResults is a results directory loaded back into memory.
type ExportedResults struct {
	Header   ResultsHeader
	Finished []EventResult
	Pending  []EventResult
}

// CSV column headers of the event tables.
var resultColumns = []string{
	"trace_id", "worker_stream_key", "w_throughput", "w_energy_consumption",
	"w_energy_consumption_standby", "accuracy", "throughput", "latency",
	"energy_consumption_w_s", "energy_consumption_w_h", "processing_time_sec",
	"worker_finished_process", "worker_end_time_sec", "scheduled_time_sec",
}

// ExportResults writes the header (YAML), the finished, pending and combined
// event tables (CSV) and the pending events grouped by worker (JSON) into
// dir. Floats use the shortest exact representation so a reload reproduces
// identical aggregates.
func ExportResults(dir string, header *ResultsHeader, res *Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	headerData, err := yaml.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling results header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, HeaderFile), headerData, 0644); err != nil {
		return fmt.Errorf("writing results header: %w", err)
	}

	all := make([]EventResult, 0, len(res.Finished)+len(res.Pending))
	all = append(all, res.Finished...)
	all = append(all, res.Pending...)
	tables := []struct {
		name string
		rows []EventResult
	}{
		{FinishedFile, res.Finished},
		{PendingFile, res.Pending},
		{AllEventsFile, all},
	}
	for _, t := range tables {
		if err := writeResultsCSV(filepath.Join(dir, t.name), t.rows); err != nil {
			return err
		}
	}

	pending := map[string][]Event{}
	if res.Timeline != nil {
		pending = res.Timeline.Pending
	}
	data, err := json.MarshalIndent(pending, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pending events: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, PendingByWorkerFile), data, 0644); err != nil {
		return fmt.Errorf("writing pending events: %w", err)
	}
	return nil
}

func writeResultsCSV(path string, rows []EventResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(resultColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range rows {
		row := []string{
			r.TraceID,
			r.Worker,
			formatFloat(r.WorkerThroughput),
			formatFloat(r.WorkerEnergy),
			formatFloat(r.WorkerEnergyStandby),
			formatFloat(r.Accuracy),
			formatFloat(r.Throughput),
			formatFloat(r.Latency),
			formatFloat(r.EnergyWattSec),
			formatFloat(r.EnergyWattHour),
			formatFloat(r.ProcessingTimeSec),
			strconv.FormatBool(r.Finished),
			formatFloat(r.WorkerEndTimeSec),
			formatFloat(r.ScheduledTimeSec),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %s: %w", r.TraceID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadResults reads a directory written by ExportResults.
func LoadResults(dir string) (*ExportedResults, error) {
	headerData, err := os.ReadFile(filepath.Join(dir, HeaderFile))
	if err != nil {
		return nil, fmt.Errorf("reading results header: %w", err)
	}
	var header ResultsHeader
	if err := yaml.Unmarshal(headerData, &header); err != nil {
		return nil, fmt.Errorf("parsing results header: %w", err)
	}
	if header.Version != ResultsVersion {
		return nil, fmt.Errorf("unsupported results_version %d", header.Version)
	}

	finished, err := readResultsCSV(filepath.Join(dir, FinishedFile))
	if err != nil {
		return nil, err
	}
	pending, err := readResultsCSV(filepath.Join(dir, PendingFile))
	if err != nil {
		return nil, err
	}
	return &ExportedResults{Header: header, Finished: finished, Pending: pending}, nil
}

func readResultsCSV(path string) ([]EventResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(resultColumns)

	// Skip header row
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header of %s: %w", filepath.Base(path), err)
	}

	var rows []EventResult
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row of %s: %w", filepath.Base(path), err)
		}
		r, err := parseResultRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func parseResultRow(row []string) (EventResult, error) {
	r := EventResult{TraceID: row[0], Worker: row[1]}
	floats := []*float64{
		&r.WorkerThroughput, &r.WorkerEnergy, &r.WorkerEnergyStandby, &r.Accuracy,
		&r.Throughput, &r.Latency, &r.EnergyWattSec, &r.EnergyWattHour, &r.ProcessingTimeSec,
	}
	for i, dst := range floats {
		v, err := strconv.ParseFloat(row[2+i], 64)
		if err != nil {
			return EventResult{}, fmt.Errorf("column %s of event %s: %w", resultColumns[2+i], r.TraceID, err)
		}
		*dst = v
	}
	finished, err := strconv.ParseBool(row[11])
	if err != nil {
		return EventResult{}, fmt.Errorf("column %s of event %s: %w", resultColumns[11], r.TraceID, err)
	}
	r.Finished = finished
	for i, dst := range []*float64{&r.WorkerEndTimeSec, &r.ScheduledTimeSec} {
		v, err := strconv.ParseFloat(row[12+i], 64)
		if err != nil {
			return EventResult{}, fmt.Errorf("column %s of event %s: %w", resultColumns[12+i], r.TraceID, err)
		}
		*dst = v
	}
	return r, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
