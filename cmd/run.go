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

	"github.com/Gnosis-MEP/benchmark-tools/eval/controller"
)

var (
	resultWebhook string // Overrides result_webhook of the request
	failOnReject  bool   // Exit non-zero when the benchmark does not pass
)

// runCmd runs a full benchmark request read from a file or stdin
var runCmd = &cobra.Command{
	Use:   "run [request.json|-]",
	Short: "Run a benchmark's tasks and evaluations and deliver the results",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		data, err := readConfig(path, cmd.InOrStdin())
		if err != nil {
			logrus.Fatalf("Failed to read benchmark request: %v", err)
		}
		reg := controller.NewRegistry(controller.Backends{})
		passed, err := runBenchmark(ctx, controller.New(reg), data, resultWebhook, cmd.OutOrStdout())
		if err != nil {
			logrus.Fatalf("Benchmark failed: %v", err)
		}
		if failOnReject && !passed {
			os.Exit(2)
		}
	},
}

// runBenchmark runs the request in data, delivers the report and writes
// the delivery reply to out.
func runBenchmark(ctx context.Context, c *controller.Controller, data []byte, webhook string, out io.Writer) (bool, error) {
	in, err := loadInput(data)
	if err != nil {
		return false, err
	}
	if webhook != "" {
		in.ResultWebhook = webhook
	}
	logrus.Infof("Running benchmark with results delivered to %s", in.ResultWebhook)
	report, reply, err := c.RunAndDeliver(ctx, in)
	if err != nil {
		return false, err
	}
	encoded, err := json.MarshalIndent(reply, "", "    ")
	if err != nil {
		return false, fmt.Errorf("encoding delivery reply: %w", err)
	}
	fmt.Fprintln(out, string(encoded))
	return report.Evaluations.Passed, nil
}

func init() {
	runCmd.Flags().StringVar(&resultWebhook, "webhook", "", "Result webhook URL or file:// path (overrides result_webhook)")
	runCmd.Flags().BoolVar(&failOnReject, "fail-on-reject", false, "Exit with status 2 when an evaluation does not pass")
}
