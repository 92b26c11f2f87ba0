// Package observability provides logging and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/a11y-auditor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
)

// Printer handles formatted output for the audit command
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content. Long lines wrap.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		for _, wrapped := range wrap(line, boxWidth-4) {
			fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, wrapped)
		}
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// wrap splits line into rune-counted chunks of at most width, breaking on spaces when possible.
func wrap(line string, width int) []string {
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}

	var out []string
	for len(runes) > width {
		cut := width
		for i := width; i > width/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// PrintAuditResult outputs a human-readable report: one box per device, the
// comprehensive analysis and any errors.
func (p *Printer) PrintAuditResult(result *types.AuditResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("URL:       %s\n", result.URL))
	sb.WriteString(fmt.Sprintf("Audit ID:  %s\n", result.ID))
	sb.WriteString(fmt.Sprintf("Completed: %s", result.Timestamp.Format("2006-01-02 15:04:05")))
	p.printBox("ACCESSIBILITY AUDIT", sb.String())

	for _, profile := range types.DeviceProfiles() {
		if findings, ok := result.Findings[profile]; ok {
			p.printDeviceFindings(profile, findings)
		}
	}

	if result.ComprehensiveAnalysis != nil {
		p.printBox("COMPREHENSIVE ANALYSIS", strings.TrimSpace(result.ComprehensiveAnalysis.String()))
	}

	if len(result.Errors) > 0 {
		sb.Reset()
		for _, e := range result.Errors {
			sb.WriteString(fmt.Sprintf("  • %s\n", e))
		}
		p.printBox(fmt.Sprintf("ERRORS (%d)", len(result.Errors)), strings.TrimSuffix(sb.String(), "\n"))
	}
}

func (p *Printer) printDeviceFindings(profile types.DeviceProfile, findings *types.DeviceFindings) {
	title := strings.ToUpper(string(profile)) + " VIEW"
	if !findings.OK() {
		p.printBox(title+" (FAILED)", fmt.Sprintf("[%s] %s", findings.ErrorCategory, findings.Error))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Axe violations: %d\n", findings.ViolationCount))
	for _, v := range findings.Violations {
		sb.WriteString(fmt.Sprintf("  • %s (%s): %s [%d nodes]\n", v.ID, v.Impact, v.Help, v.Nodes))
	}
	if findings.ViolationCount > len(findings.Violations) {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", findings.ViolationCount-len(findings.Violations)))
	}
	if page := findings.Page; page != nil {
		sb.WriteString(fmt.Sprintf("Images without alt: %d of %d\n", page.ImagesMissingAlt, page.Images))
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(findings.Analysis.String()))
	p.printBox(title, sb.String())
}
