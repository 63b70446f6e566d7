package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/internal/source"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [task]",
		Short: "Download records and store them as pending inputs",
		Long: `Download records from files (--dir) or a JSON HTTP API (--url) and store
the ones that pass the task's input schema as pending inputs.

With --record-url the list URL must return record identifiers, and every
record is fetched separately. Both URLs may reference {category}; the record
URL may also reference {id}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			dir, _ := flags.GetString("dir")
			pattern, _ := flags.GetString("pattern")
			listURL, _ := flags.GetString("url")
			recordURL, _ := flags.GetString("record-url")
			headers, _ := flags.GetStringToString("header")
			idField, _ := flags.GetString("id-field")
			category, _ := flags.GetString("category")
			fetchConcurrency, _ := flags.GetInt("fetch-concurrency")

			var d service.Downloader
			switch {
			case dir != "" && listURL != "":
				return fmt.Errorf("--dir and --url are mutually exclusive")
			case dir != "":
				fd := source.NewFileDownloader(dir, pattern)
				fd.IDField = idField
				d = fd
			case listURL != "":
				d, err = source.NewHTTPDownloader(source.HTTPConfig{
					ListURL:   listURL,
					RecordURL: recordURL,
					IDField:   idField,
					Headers:   headers,
				})
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("one of --dir or --url is required")
			}

			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signalContext(cmd)
			defer stop()
			importer := service.NewImporter(store, log.GetLogger(), fetchConcurrency)
			report, err := importer.Import(ctx, args[0], category, d)
			if err != nil {
				log.GetLogger().Errorf("Import into task %q failed: %v", args[0], err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported into '%s': %s\n", args[0], report)
			for _, e := range report.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory of record files")
	cmd.Flags().String("pattern", source.DefaultPattern, "Glob of record files below --dir")
	cmd.Flags().String("url", "", "List URL of a JSON records API")
	cmd.Flags().String("record-url", "", "Per-record URL; enables enumerate-then-fetch")
	cmd.Flags().StringToString("header", nil, "HTTP header to send (name=value), repeatable")
	cmd.Flags().String("id-field", source.DefaultIDField, "Record key holding the external identifier")
	cmd.Flags().String("category", "", "Category stored with every imported input")
	cmd.Flags().Int("fetch-concurrency", service.DefaultFetchConcurrency, "Parallel per-record fetches")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [task]",
		Short: "Move the failed inputs of a task back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := service.NewInputService(store, log.GetLogger()).ResetFailed(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed inputs of task '%s' to pending\n", n, args[0])
			return nil
		},
	}
}

func inputsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inputs [task]",
		Short: "List the inputs of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			asJSON, _ := cmd.Flags().GetBool("json")
			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			inputs, err := service.NewInputService(store, log.GetLogger()).List(args[0], models.InputStatus(status))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(inputs)
			}
			if len(inputs) == 0 {
				fmt.Fprintf(w, "No inputs found.\n")
				return nil
			}
			for _, in := range inputs {
				line := fmt.Sprintf("- ID: %d, External ID: %s, Status: %s, Attempts: %d, Updated: %s",
					in.ID, in.ExternalID, in.Status, in.Attempts, in.UpdatedAt.Format(time.RFC3339))
				if in.ErrorKind != models.NoErrorKind {
					line += fmt.Sprintf(", Error (%s): %s", in.ErrorKind, strings.ReplaceAll(in.ErrorMsg, "\n", " "))
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
	cmd.Flags().String("status", "", "Only list inputs with this status")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}
