package versionit

import (
	"errors"
	"fmt"
)

// ErrNoTemplateSelected is returned by the composer when no template name was
// given and no default template is configured.
var ErrNoTemplateSelected = errors.New("no template specified and no default template set")

// ErrVersionOverflow is returned by Version.Bump when the bumped component is
// already at the largest value its scheme can hold.
var ErrVersionOverflow = errors.New("version component at its maximum")

// ParseError is returned when a version string is not valid for a scheme.
type ParseError struct {
	Scheme Scheme
	Input  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s version %q: %v", e.Scheme, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReferenceError is returned when a versioned block references a block that
// has not been evaluated earlier in the same template.
type ReferenceError struct {
	Name string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("referenced version block %q not found", e.Name)
}

// TemplateNotFoundError is returned when the composer has no template with
// the requested name.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.Name)
}
