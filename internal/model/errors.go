package model

import "fmt"

// ConfigError represents a malformed or incomplete rule set.
// It is fatal: a batch must not start when one is returned.
type ConfigError struct {
	Key     string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid rule set: %s: %s (%v)", e.Key, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid rule set: %s: %s", e.Key, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new config error
func NewConfigError(key, message string, cause error) *ConfigError {
	return &ConfigError{
		Key:     key,
		Message: message,
		Cause:   cause,
	}
}

// CoercionError reports a value that could not be converted to its declared field type.
// The field validator always turns it into a type_mismatch discrepancy.
type CoercionError struct {
	Field    string
	Value    interface{}
	Expected FieldType
	Cause    error
}

func (e *CoercionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot coerce %s=%v to %s (%v)", e.Field, e.Value, e.Expected, e.Cause)
	}
	return fmt.Sprintf("cannot coerce %s=%v to %s", e.Field, e.Value, e.Expected)
}

func (e *CoercionError) Unwrap() error {
	return e.Cause
}

// NewCoercionError creates a new coercion error
func NewCoercionError(field string, value interface{}, expected FieldType, cause error) *CoercionError {
	return &CoercionError{
		Field:    field,
		Value:    value,
		Expected: expected,
		Cause:    cause,
	}
}

// ParseError represents a record that could not be decoded from its wire form
type ParseError struct {
	Source  string
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Source, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Source, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(source, field, message string, cause error) *ParseError {
	return &ParseError{
		Source:  source,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}
