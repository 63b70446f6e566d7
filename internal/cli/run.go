package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Classify the pending inputs of a task",
		Long: `Classify every pending input of a task with at most CONCURRENCY_LIMIT
remote calls in flight. Inputs that already succeeded are never sent again;
failed inputs stay failed unless --reset-failed is given. Interrupting the
command stops handing out inputs and waits for calls already in flight.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			resetFailed, _ := cmd.Flags().GetBool("reset-failed")
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx, stop := signalContext(cmd)
			defer stop()
			client, err := newClient(ctx, cfg, nil)
			if err != nil {
				return err
			}
			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if resetFailed {
				n, err := service.NewInputService(store, log.GetLogger()).ResetFailed(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Reset %d failed inputs to pending\n", n)
			}

			svc := service.NewClassificationService(store, client, log.GetLogger())
			outcome, err := svc.Run(ctx, args[0])
			if err != nil {
				log.GetLogger().Errorf("Run of task %q aborted: %v", args[0], err)
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(outcome)
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		},
	}
	cmd.Flags().Bool("reset-failed", false, "Move failed inputs back to pending first")
	cmd.Flags().Bool("json", false, "Print the run outcome as JSON")
	return cmd
}

func printOutcome(w io.Writer, outcome models.RunOutcome) {
	fmt.Fprintf(w, "Run %s of task '%s' finished in %s\n", outcome.RunID, outcome.TaskName,
		outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "%s\n", outcome.Summary())
	for _, item := range outcome.Items {
		if item.Kind == models.FailedOutcome {
			fmt.Fprintf(w, "- input %d failed (%s) after %d attempts: %s\n", item.InputID, item.ErrorKind, item.Attempts, item.Message)
		}
	}
}
