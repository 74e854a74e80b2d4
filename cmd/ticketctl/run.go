package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runKey string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workflow synchronously for one ticket",
	Long: `Run a workflow in-process, bypassing the event queue. Reusing the run key
of a failed run resumes it from its last completed step.`,
}

var runTriageCmd = &cobra.Command{
	Use:   "triage <ticket-id>",
	Short: "Classify and assign a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		key := resolveRunKey()
		commandLogger(application, cmd).Info("running triage", zap.String("run_key", key), zap.String("ticket_id", args[0]))
		outcome, err := application.Triage.Run(cmd.Context(), key, args[0])
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

var runAssistCmd = &cobra.Command{
	Use:   "assist <ticket-id>",
	Short: "Generate moderator suggestions for a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		key := resolveRunKey()
		commandLogger(application, cmd).Info("running moderator assist", zap.String("run_key", key), zap.String("ticket_id", args[0]))
		outcome, err := application.Assist.Run(cmd.Context(), key, args[0])
		if err != nil {
			return err
		}
		return printJSON(outcome)
	},
}

func resolveRunKey() string {
	if runKey != "" {
		return runKey
	}
	return "manual-" + uuid.NewString()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.PersistentFlags().StringVar(&runKey, "run-key", "", "workflow run key (defaults to a fresh manual key)")
	runCmd.AddCommand(runTriageCmd, runAssistCmd)
	rootCmd.AddCommand(runCmd)
}
