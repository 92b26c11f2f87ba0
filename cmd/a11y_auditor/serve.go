package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/a11y-auditor/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long:  `Start an HTTP server with the audit form, the audit endpoints and a health check.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5000, "Port to listen on")
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	opts := server.Options{
		Config:        a.cfg.Server,
		APIKeyPresent: a.cfg.HasAPIKey(),
		WaitTimeout:   a.cfg.Browser.WaitTimeout,
		Logger:        a.logger,
	}
	// Assigned only when non-nil so the interface stays nil for an uninitialized auditor.
	if a.initErr == nil {
		opts.Auditor = a.auditor
	}

	srv, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(cmd.Context())
}
