// Package main provides the entry point for the accessibility auditor CLI and web server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/a11y-auditor/internal/config"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "a11y_auditor",
	Short: "Accessibility auditor for web pages",
	Long: "Loads a page in headless Chrome as a desktop and a mobile visitor, runs axe-core, " +
		"and asks Gemini for a WCAG 2.1 AA / EN 301 549 compliance assessment.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML or JSON config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
