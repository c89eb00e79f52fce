package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration marks a report definition that cannot run.
	ErrInvalidConfiguration = errors.New("invalid report configuration")
	// ErrUnknownReport is returned for a report name nobody defined.
	ErrUnknownReport = errors.New("unknown report")
)

// ConfigError points at the offending part of a report definition.
type ConfigError struct {
	Report string
	Field  string // keys, metrics, fields, filters, joins, sort
	Name   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("report %s: %s %q: %s", e.Report, e.Field, e.Name, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }
