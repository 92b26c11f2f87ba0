// Package steps provides step definitions and dependency validation for the
// audit pipeline.
package steps

import (
	"fmt"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// Step categories
const (
	CategoryRender    = "render"
	CategorySynthesis = "synthesis"
)

// Step names
const (
	RenderDesktop  = "render_desktop"
	RenderMobile   = "render_mobile"
	AnalyzeDesktop = "analyze_desktop"
	AnalyzeMobile  = "analyze_mobile"
	Comprehensive  = "comprehensive"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Category     string
	Dependencies []string
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	RenderDesktop: {
		Name:     RenderDesktop,
		Category: CategoryRender,
	},
	RenderMobile: {
		Name:     RenderMobile,
		Category: CategoryRender,
	},
	AnalyzeDesktop: {
		Name:         AnalyzeDesktop,
		Category:     CategorySynthesis,
		Dependencies: []string{RenderDesktop},
	},
	AnalyzeMobile: {
		Name:         AnalyzeMobile,
		Category:     CategorySynthesis,
		Dependencies: []string{RenderMobile},
	},
	// The comprehensive report only needs both pages; a failed device
	// narrative is replaced by a placeholder.
	Comprehensive: {
		Name:         Comprehensive,
		Category:     CategorySynthesis,
		Dependencies: []string{RenderDesktop, RenderMobile},
	},
}

// Render returns the render step for a device.
func Render(device types.DeviceProfile) string {
	return "render_" + string(device)
}

// Analyze returns the narrative step for a device.
func Analyze(device types.DeviceProfile) string {
	return "analyze_" + string(device)
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// Tracker records which steps of one audit completed successfully.
// It is not safe for concurrent use.
type Tracker struct {
	completed map[string]bool
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{completed: make(map[string]bool)}
}

// Complete marks a step as completed.
func (t *Tracker) Complete(step string) {
	t.completed[step] = true
}

// Completed reports whether step completed.
func (t *Tracker) Completed(step string) bool {
	return t.completed[step]
}

// ValidateDependencies checks if all required dependencies for a step are completed
func (t *Tracker) ValidateDependencies(stepName string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !t.completed[dep] {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}
	return nil
}

// Ready reports whether every dependency of stepName has completed.
func (t *Tracker) Ready(stepName string) bool {
	return t.ValidateDependencies(stepName) == nil
}
