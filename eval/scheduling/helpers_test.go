package scheduling

import (
	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/jaeger"
)

const (
	workerA = "worker-000-data"
	workerB = "worker-001-data"
	workerC = "worker-002-data"

	preConsumeOp = "serialize_and_write_event_with_trace"
	consumeOp    = "consume_stream"
	workerType   = "MockedStreamConsumer"
)

// makeTrace builds a trace published at init, scheduled to worker ending at
// scheduledEnd and, when consumeDur > 0, consumed at consumeStart. An empty
// worker leaves the destination tag out.
func makeTrace(id string, init int64, worker string, scheduledEnd, consumeStart, consumeDur int64) jaeger.Trace {
	tr := jaeger.Trace{
		TraceID: id,
		Processes: map[string]jaeger.Process{
			"p0": {ServiceName: "ClientManager"},
			"p1": {ServiceName: DefaultSchedulerService},
			"p2": {ServiceName: workerType},
		},
	}
	tr.Spans = append(tr.Spans, jaeger.Span{
		TraceID: id, SpanID: id + "-0", OperationName: "publish", ProcessID: "p0",
		StartTime: init, Duration: 1,
	})
	var tags []jaeger.KeyValue
	if worker != "" {
		tags = []jaeger.KeyValue{{Key: DefaultDestinationTagKey, Type: "string", Value: worker}}
	}
	tr.Spans = append(tr.Spans, jaeger.Span{
		TraceID: id, SpanID: id + "-1", OperationName: preConsumeOp, ProcessID: "p1",
		StartTime: scheduledEnd - 10, Duration: 10, Tags: tags,
	})
	if consumeDur > 0 {
		tr.Spans = append(tr.Spans, jaeger.Span{
			TraceID: id, SpanID: id + "-2", OperationName: consumeOp, ProcessID: "p2",
			StartTime: consumeStart, Duration: consumeDur,
		})
	}
	return tr
}

func testClassifier() *Classifier {
	return NewClassifier(ClassifierConfig{
		PreConsumeOperation: preConsumeOp,
		WorkerServiceTypes:  []string{workerType},
		ConsumeOperation:    consumeOp,
	})
}

func testProfiles() map[string]WorkerProfile {
	return map[string]WorkerProfile{
		workerA: {Throughput: 2, ThroughputStd: 0.5, Accuracy: 21, EnergyConsumption: 100, EnergyConsumptionStd: 10, EnergyConsumptionStandby: 10},
		workerB: {Throughput: 4, ThroughputStd: 1, Accuracy: 37, EnergyConsumption: 8, EnergyConsumptionStd: 1, EnergyConsumptionStandby: 2},
		workerC: {Throughput: 1, Accuracy: 28, EnergyConsumption: 12, EnergyConsumptionStandby: 2},
	}
}

func testConfig() *Config {
	cfg := &Config{
		WorkersConfigurationProfile: testProfiles(),
		WorkersServiceTypes:         []string{workerType},
		PreConsumeStreamProcessName: preConsumeOp,
		ConsumeStreamProcessName:    consumeOp,
		ExperimentTime:              10,
		ThresholdFunctions:          eval.MustParseThresholds(".*", "any"),
	}
	cfg.ApplyDefaults()
	return cfg
}

// testTraces holds finished and pending events on workerA and workerB, one
// trace without destination, and leaves workerC unused.
func testTraces() []jaeger.Trace {
	return []jaeger.Trace{
		makeTrace("t1", 0, workerA, 100_000, 200_000, 500_000),
		makeTrace("t2", 50_000, workerB, 150_000, 160_000, 250_000),
		makeTrace("t3", 1_000_000, workerA, 1_100_000, 1_200_000, 500_000),
		makeTrace("t4", 1_500_000, workerA, 1_600_000, 0, 0),
		makeTrace("t5", 1_400_000, workerA, 1_500_000, 0, 0),
		makeTrace("t6", 2_000_000, workerB, 2_100_000, 0, 0),
		makeTrace("t7", 2_500_000, "", 2_600_000, 0, 0),
	}
}
