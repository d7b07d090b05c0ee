package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
	"github.com/Gnosis-MEP/benchmark-tools/eval/controller"
)

var (
	evalModule string // Evaluation module name
	kwargsPath string // Path of the kwargs document
)

// evaluateCmd runs a single evaluation module
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one evaluation module and print its verdict",
	Long: `Run one evaluation module and print its verdict.

A jaeger_api_host of the form file://<path> reads traces from a saved
/api/traces response instead of a live query service. workers_scheduling
takes its variation seed from the clock unless kwargs set "seed"; the seed
used is written to results_header.yaml.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		data, err := readConfig(kwargsPath, cmd.InOrStdin())
		if err != nil {
			logrus.Fatalf("Failed to read kwargs: %v", err)
		}
		reg := controller.NewRegistry(controller.Backends{})
		if _, err := runEvaluation(ctx, reg, evalModule, data, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Evaluation %s failed: %v", evalModule, err)
		}
	},
}

// runEvaluation runs one module with the kwargs in data and prints its
// verdict as JSON.
func runEvaluation(ctx context.Context, reg *controller.Registry, module string, data []byte, out io.Writer) (*eval.Verdict, error) {
	run, ok := reg.Evaluation(module)
	if !ok {
		return nil, fmt.Errorf("unknown evaluation module %q", module)
	}
	kwargs, err := loadKwargs(data)
	if err != nil {
		return nil, err
	}
	v, err := run(ctx, kwargs)
	if err != nil {
		return nil, err
	}
	return v, printVerdict(out, v)
}

func printVerdict(out io.Writer, v *eval.Verdict) error {
	encoded, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

func init() {
	evaluateCmd.Flags().StringVar(&evalModule, "module", "", "Evaluation module (e.g. workers_scheduling)")
	evaluateCmd.Flags().StringVar(&kwargsPath, "kwargs", "", "Path of the module kwargs (YAML or JSON; stdin when empty)")
	_ = evaluateCmd.MarkFlagRequired("module")
}
