package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof"

	"github.com/KyleBrandon/planty/config"
	"github.com/KyleBrandon/planty/pkg/server"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	var opts server.Options

	run := func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), opts)
	}

	rootCmd := &cobra.Command{
		Use:           "planty",
		Short:         "Planty waters a house plant when its soil is dry",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log_level", config.DefaultLogLevel.String(), "The log level to start the server at")
	rootCmd.PersistentFlags().BoolVar(&opts.UseMockSensor, "use_mock_sensor", false, "Indicate if we should use a mock sensor for the server instance.")
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file path (overrides CONFIG_FILE_LOCATION)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the watering controller and its server",
		RunE:  run,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return rootCmd
}

func runServer(ctx context.Context, opts server.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := server.InitializeServer(opts)
	if err != nil {
		return err
	}

	go func() {
		slog.Debug("pprof listener stopped", "error", http.ListenAndServe("localhost:6060", nil))
	}()

	return sc.Run(ctx)
}
