package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/a11y-auditor/internal/observability"
	"github.com/jonathan/a11y-auditor/internal/types"
)

var auditJSON bool

var auditCmd = &cobra.Command{
	Use:   "audit <url>",
	Short: "Audit one page and print the report",
	Long:  "Run a desktop and mobile accessibility audit of one URL. http:// is assumed when no scheme is given.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Print the result as JSON")
	auditCmd.Flags().Duration("timeout", types.DefaultWaitTimeout, "How long to wait for the page body per device")
	_ = v.BindPFlag("browser.wait_timeout", auditCmd.Flags().Lookup("timeout"))
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if a.initErr != nil {
		return a.initErr
	}

	req := types.AuditRequest{URL: args[0], Timeout: a.cfg.Browser.WaitTimeout}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid URL %q: %w", req.URL, err)
	}

	result := a.auditor.RunAudit(cmd.Context(), req.URL, req.Timeout)

	out := cmd.OutOrStdout()
	if auditJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		observability.NewPrinter(out).PrintAuditResult(result)
	}

	if !result.AllDevicesSucceeded() {
		return errors.New("audit incomplete: at least one device failed")
	}
	return nil
}
