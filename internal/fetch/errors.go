package fetch

import (
	"fmt"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// RenderError represents a failed page render for one device
type RenderError struct {
	Category types.ErrorCategory
	Device   types.DeviceProfile
	Message  string
	Cause    error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error (%s, %s): %s: %v", e.Device, e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("render error (%s, %s): %s", e.Device, e.Category, e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
