package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/scheduling"
)

var reaggregateKwargs string // Optional workers_scheduling kwargs

// reaggregateCmd recomputes the scheduling metrics of exported results
var reaggregateCmd = &cobra.Command{
	Use:   "reaggregate <results-dir>",
	Short: "Recompute and verify workers_scheduling metrics from exported tables",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var data []byte
		if reaggregateKwargs != "" {
			var err error
			if data, err = readConfig(reaggregateKwargs, cmd.InOrStdin()); err != nil {
				logrus.Fatalf("Failed to read kwargs: %v", err)
			}
		}
		if _, err := reaggregate(args[0], data, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Reaggregation failed: %v", err)
		}
	},
}

// reaggregate loads the tables exported in dir and verifies them against
// the thresholds of the kwargs in data. Without kwargs every metric is
// reported against "any".
func reaggregate(dir string, data []byte, out io.Writer) (*eval.Verdict, error) {
	var cfg scheduling.Config
	if len(data) > 0 {
		if err := decodeStrict(data, &cfg); err != nil {
			return nil, err
		}
	}
	exported, err := scheduling.LoadResults(dir)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Loaded %d finished and %d pending events from %s", len(exported.Finished), len(exported.Pending), dir)

	metrics, err := scheduling.Reaggregate(exported, &cfg)
	if err != nil {
		return nil, err
	}
	thresholds := cfg.ThresholdFunctions
	if len(data) == 0 {
		thresholds = eval.MustParseThresholds(".*", "any")
	}
	v, err := eval.VerifyThresholds(metrics, thresholds)
	if err != nil {
		return nil, fmt.Errorf("verifying thresholds: %w", err)
	}
	return v, printVerdict(out, v)
}

func init() {
	reaggregateCmd.Flags().StringVar(&reaggregateKwargs, "kwargs", "", "Path of workers_scheduling kwargs providing thresholds and rates")
}
