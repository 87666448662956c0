package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fsae-team/daqserver/internal/app"
	"github.com/fsae-team/daqserver/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "daqserver",
		Short: "Formula SAE team dashboard server",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.Int("http-port", 8000, "HTTP port to listen on")
	f.String("data-dir", "/var/lib/daqserver", "directory holding the SQLite database")
	f.String("forms-dir", "/etc/daqserver/forms", "directory of form descriptor YAML files")
	f.String("watch-dir", "", "initial LDX watch directory, if WatchConfig has never been set")
	f.String("log-level", "info", "log level: debug, info, warn, error")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("http_port", "http-port")
	bindFlag("data_dir", "data-dir")
	bindFlag("forms_dir", "forms-dir")
	bindFlag("watch_dir", "watch-dir")
	bindFlag("log_level", "log-level")

	// Environment names are fixed by the dashboard's deployment contract,
	// not prefixed like a typical CLAUDEOPS_*-style tool: ops scripts and
	// container manifests already reference these exact names.
	_ = viper.BindEnv("http_port", "HTTP_PORT")
	_ = viper.BindEnv("admin_username", "ADMIN_USERNAME")
	_ = viper.BindEnv("admin_password", "ADMIN_PASSWORD")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("watch_dir", "LDX_WATCH_DIR")
	_ = viper.BindEnv("allowed_origins", "ALLOWED_ORIGINS")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("daqserver starting\n")
	fmt.Printf("  http port:  %d\n", cfg.HTTPPort)
	fmt.Printf("  data dir:   %s\n", cfg.DataDir)
	fmt.Printf("  forms dir:  %s\n", cfg.FormsDir)
	fmt.Printf("  log level:  %s\n", cfg.LogLevel)
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Boot(ctx, &cfg)
	if err != nil {
		log.Printf("boot failed: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down...", sig)
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		log.Printf("fatal runtime error: %v", err)
		os.Exit(2)
	}
	return nil
}
