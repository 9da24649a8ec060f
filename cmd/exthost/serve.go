package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/server"
)

var (
	servePort        string
	serveRegistryDir string
	serveDev         bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extension host",
	Long: `Run the extension host. Configuration comes from the environment
(PORT, REGISTRY_URL, REGISTRY_DIR, INSTALL_API_URL, DATA_API_URL, ...);
flags override it.

Example:
  exthost serve
  exthost serve --registry-dir ./extensions --dev`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "console API port")
	serveCmd.Flags().StringVar(&serveRegistryDir, "registry-dir", "", "serve the catalog from a local directory")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "development logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	if serveRegistryDir != "" {
		cfg.Registry.Dir = serveRegistryDir
	}
	if serveDev {
		cfg.Logging.Development = true
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
