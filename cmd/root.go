package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/application"
	"github.com/cartelera-live/cartelera/internal/config"
	"github.com/cartelera-live/cartelera/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cartelera",
	Short: "Cartelera is the live-update server for kiosk menu displays",
	Long:  `Real-time catalog server: admin mutations fan out over WebSocket to every kiosk and panel scoped to the same location.`,
	Example: `
  cartelera start --db-host localhost --db-port 5432
  cartelera start --log-level debug
  cartelera start --config /etc/cartelera/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version and kiosk are client-side; only the server loads config.
		if cmd.Name() == "version" || cmd.Name() == "kiosk" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("db-host") {
			cfg.Database.Server, _ = flags.GetString("db-host")
		}
		if flags.Changed("db-port") {
			cfg.Database.Port, _ = flags.GetInt("db-port")
		}
		if flags.Changed("log-level") {
			cfg.Logging.Level, _ = flags.GetString("log-level")
		}
		if flags.Changed("log-file") {
			cfg.Logging.FilePath, _ = flags.GetString("log-file")
		}
		if flags.Changed("log-format") {
			cfg.Logging.Format, _ = flags.GetString("log-format")
		}
		if flags.Changed("metrics-port") {
			cfg.Metrics.Port, _ = flags.GetInt("metrics-port")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")
	rootCmd.PersistentFlags().String("db-host", "localhost", "PostgreSQL host")
	rootCmd.PersistentFlags().Int("db-port", 5432, "PostgreSQL port")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-file", "", "Path to the log file")
	rootCmd.PersistentFlags().String("log-format", "console", "Log output format (console or json)")
	rootCmd.PersistentFlags().Int("metrics-port", 8181, "Port for Prometheus metrics server")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the cartelera version",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")
	rootCmd.AddCommand(versionCmd)

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the cartelera server",
		Long:  "Start the WebSocket broadcast server and the catalog API with the specified configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				absPath, err := filepath.Abs(cfgFile)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				cfgFile = absPath
			}

			if err := logger.Init(
				logger.WithLevel(cfg.Logging.Level),
				logger.WithFormat(cfg.Logging.Format),
				logger.WithFile(cfg.Logging.FilePath),
				logger.WithVersion(config.Version),
				logger.WithComponent("cartelera"),
				logger.WithRotation(cfg.Logging.MaxSize, cfg.Logging.MaxBackups, cfg.Logging.MaxAge),
			); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Shutdown() }()

			ctx := cmd.Context()
			log := logger.New("node")

			node, err := application.NewNode(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("init node: %w", err)
			}

			logger.Info("cartelera started",
				zap.String("version", config.Version),
				zap.String("ws_addr", cfg.Broker.WSAddr))

			if err := node.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(newKioskCmd())
}
