package network

import "fmt"

// ValidationError reports an invalid component attribute
type ValidationError struct {
	Component string
	Name      string
	Field     string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("validation error for %s %q field '%s': %s", e.Component, e.Name, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for %s field '%s': %s", e.Component, e.Field, e.Message)
}
