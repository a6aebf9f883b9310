package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tvandergeer/bgtask"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- COMMAND...",
	Short: "Run a shell command with failure capture",
	Long: `Run a shell command through the result recorder.

The command's exit code becomes bgtask's exit code. A non-zero exit is
recorded to the log file as a failure record; with --die the process exits
immediately, mirroring run-or-die semantics.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("die", false, "exit immediately when the command fails")
	bindFlag("die", runCmd.Flags(), "die")
}

func runRun(_ *cobra.Command, args []string) error {
	cfg := Load(viper.GetViper())
	command := strings.Join(args, " ")

	sink := bgtask.NewSink(
		bgtask.WithLogFile(cfg.LogFile),
		bgtask.WithLevel(cfg.SlogLevel()),
	)
	defer func() { _ = sink.Close() }()

	runner := bgtask.NewRunner(
		bgtask.WithSink(sink),
		bgtask.WithVerbose(cfg.Verbose),
	)

	res := runner.Call(func() (int, error) {
		code := bgtask.Run(command)
		if code != 0 {
			return code, errors.New(command + ": non-zero exit")
		}
		return 0, nil
	})

	if res.OK() {
		return nil
	}
	if viper.GetBool("die") {
		os.Exit(1)
	}
	return res.Err()
}
