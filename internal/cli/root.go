package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/botkeeper/internal/control"
	"github.com/vietddude/botkeeper/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
	apiAddr string
)

var rootCmd = &cobra.Command{
	Use:   "botkeeper",
	Short: "Keeps a pool of game-server client sessions alive",
	Long: `botkeeper maintains long-lived game-server sessions, reconnects them on a
staggered schedule and restores the pool after a restart.`,
	Run: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session pool and its control surface",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", defaultAddr(), "control surface address used by client commands")
	rootCmd.AddCommand(serveCmd)
}

func defaultAddr() string {
	if addr := os.Getenv("BOTKEEPER_ADDR"); addr != "" {
		return addr
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "7860"
	}
	return "http://localhost:" + port
}

func setupLogging(level string) {
	slogLevel := slog.LevelInfo
	if isDebug || level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

func runServe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewKeeper(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Keeper", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Keeper", "error", err)
		os.Exit(1)
	}

	slog.Info("Service running", "port", cfg.Server.Port, "config", cfgPath)

	errChan := make(chan error, 1)
	go func() { errChan <- app.Wait() }()

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case err := <-errChan:
		if err != nil {
			slog.Error("Server failed, shutting down...", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
