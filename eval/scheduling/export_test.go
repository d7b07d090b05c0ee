package scheduling

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportResults_RoundTripReproducesMetrics(t *testing.T) {
	// GIVEN a computed run with variation enabled
	cfg := testConfig()
	cfg.ApplyWorkerConfigVariation = true
	seed := int64(7)
	cfg.Seed = &seed
	res, err := Compute(testTraces(), cfg)
	require.NoError(t, err)

	// WHEN exported and loaded back
	dir := t.TempDir()
	require.NoError(t, ExportResults(dir, cfg.Header(res.Timeline.Total), res))
	loaded, err := LoadResults(dir)
	require.NoError(t, err)

	// THEN the rows and the re-aggregated metrics are identical
	assert.Equal(t, res.Finished, loaded.Finished)
	assert.Equal(t, res.Pending, loaded.Pending)
	again, err := Reaggregate(loaded, cfg)
	require.NoError(t, err)
	assert.Equal(t, res.Metrics, again)
}

func TestExportResults_ReaggregateFromHeaderProfiles(t *testing.T) {
	cfg := testConfig()
	res, err := Compute(testTraces(), cfg)
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, ExportResults(dir, cfg.Header(res.Timeline.Total), res))
	loaded, err := LoadResults(dir)
	require.NoError(t, err)

	// a configuration without profiles falls back to the exported ones
	bare := &Config{}
	bare.ApplyDefaults()
	again, err := Reaggregate(loaded, bare)
	require.NoError(t, err)

	assert.Equal(t, res.Metrics, again)
}

func TestExportResults_WritesAllTables(t *testing.T) {
	cfg := testConfig()
	res, err := Compute(testTraces(), cfg)
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "nested", "out")

	require.NoError(t, ExportResults(dir, cfg.Header(res.Timeline.Total), res))

	for _, name := range []string{HeaderFile, FinishedFile, PendingFile, AllEventsFile, PendingByWorkerFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	all, err := readResultsCSV(filepath.Join(dir, AllEventsFile))
	require.NoError(t, err)
	assert.Len(t, all, len(res.Finished)+len(res.Pending))

	data, err := os.ReadFile(filepath.Join(dir, PendingByWorkerFile))
	require.NoError(t, err)
	var byWorker map[string][]Event
	require.NoError(t, json.Unmarshal(data, &byWorker))
	assert.Len(t, byWorker, 3)
	assert.Len(t, byWorker[workerA], 2)
	assert.Empty(t, byWorker[workerC])
	require.NotNil(t, byWorker[workerA][0].Timing)
	assert.False(t, byWorker[workerA][0].Finished)
}

func TestLoadResults_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadResults(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
	t.Run("unsupported version", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, HeaderFile), []byte("results_version: 99\n"), 0644))
		_, err := LoadResults(dir)
		assert.ErrorContains(t, err, "results_version")
	})
	t.Run("malformed number", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, HeaderFile), []byte("results_version: 1\n"), 0644))
		row := "t1,w,x,1,1,1,1,1,1,1,1,true,1,1\n"
		header := "trace_id,worker_stream_key,w_throughput,w_energy_consumption,w_energy_consumption_standby,accuracy,throughput,latency,energy_consumption_w_s,energy_consumption_w_h,processing_time_sec,worker_finished_process,worker_end_time_sec,scheduled_time_sec\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, FinishedFile), []byte(header+row), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, PendingFile), []byte(header), 0644))
		_, err := LoadResults(dir)
		assert.ErrorContains(t, err, "w_throughput")
	})
}
