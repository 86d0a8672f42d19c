package template

import (
	"fmt"
	"strings"
)

// RenderError lists the variables a template referenced but the caller did not supply.
type RenderError struct {
	Missing []string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("template: missing variables: %s", strings.Join(e.Missing, ", "))
}

// SyntaxError is returned when a template fails validation.
type SyntaxError struct {
	Problems []string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template: invalid syntax: %s", strings.Join(e.Problems, "; "))
}
