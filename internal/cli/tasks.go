package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/ignatij/goclassify/internal/config"
	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/spf13/cobra"
)

func defineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "define [tasks.yaml]",
		Short: "Create the task definitions in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defs, err := config.LoadTaskFile(args[0])
			if err != nil {
				return err
			}
			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := service.NewDefinitionService(store, log.GetLogger())
			for _, def := range defs {
				id, err := svc.Create(def)
				if err != nil {
					log.GetLogger().Errorf("Failed to create task %q: %v", def.Name, err)
					return fmt.Errorf("failed to create task %q: %w", def.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created task '%s' with ID %d\n", def.Name, id)
			}
			return nil
		},
	}
}

func tasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List all task definitions",
		Args:  cobra.NoArgs,
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

			svc := service.NewDefinitionService(store, log.GetLogger())
			inputs := service.NewInputService(store, log.GetLogger())
			return listTasks(cmd.OutOrStdout(), svc, inputs)
		},
	}
}

func listTasks(w io.Writer, svc *service.DefinitionService, inputs *service.InputService) error {
	defs, err := svc.List()
	if err != nil {
		log.GetLogger().Errorf("Failed to list tasks: %v", err)
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(defs) == 0 {
		fmt.Fprintf(w, "No tasks found.\n")
		return nil
	}
	fmt.Fprintf(w, "Tasks:\n")
	for _, def := range defs {
		counts, err := inputs.Counts(def.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "- ID: %d, Name: %s, Inputs: %d pending / %d succeeded / %d failed, Created: %s\n",
			def.ID, def.Name, counts[models.PendingInputStatus], counts[models.SucceededInputStatus], counts[models.FailedInputStatus], def.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
