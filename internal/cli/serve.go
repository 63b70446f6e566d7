package cli

import (
	internal_http "github.com/ignatij/goclassify/internal/http"
	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/internal/metrics"
	"github.com/ignatij/goclassify/internal/source"
	"github.com/ignatij/goclassify/internal/watch"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.HTTPPort = port
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			store, err := initStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var classifier *service.ClassificationService
			client, err := newClient(ctx, cfg, m)
			if err != nil {
				log.GetLogger().Warnf("Runs are disabled: %v", err)
			} else {
				classifier = service.NewClassificationService(store, client, log.GetLogger(), service.WithMetrics(m))
			}
			return internal_http.StartServer(ctx, cfg.HTTPPort, internal_http.NewServer(store, classifier, reg))
		},
	}
	cmd.Flags().String("port", "", "Port to listen on (overrides HTTP_PORT)")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [task]",
		Short: "Import and classify record files as they appear in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			pattern, _ := cmd.Flags().GetString("pattern")
			category, _ := cmd.Flags().GetString("category")
			idField, _ := cmd.Flags().GetString("id-field")
			debounce, _ := cmd.Flags().GetDuration("debounce")

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
			if _, err := store.GetTaskDefinition(args[0]); err != nil {
				return err
			}

			files := source.NewFileDownloader(dir, pattern)
			pipeline := &watch.Pipeline{
				Importer:   service.NewImporter(store, log.GetLogger(), 0),
				Classifier: service.NewClassificationService(store, client, log.GetLogger()),
				Task:       args[0],
				Category:   category,
				IDField:    idField,
				Logger:     log.GetLogger(),
			}
			w := watch.New(dir, files.Match, pipeline.Handle,
				watch.WithDebounce(debounce), watch.WithLogger(log.GetLogger()))
			return w.Run(ctx)
		},
	}
	cmd.Flags().String("dir", ".", "Directory to watch")
	cmd.Flags().String("pattern", source.DefaultPattern, "Glob of record files below --dir")
	cmd.Flags().String("category", "", "Category stored with every imported input")
	cmd.Flags().String("id-field", source.DefaultIDField, "Record key holding the external identifier")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a file is handled")
	return cmd
}

