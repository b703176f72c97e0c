// Package agentconfig parses, validates, normalizes and serializes declarative
// agent definitions and resolves the variables embedded in their prompts.
package agentconfig

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyDocument indicates the definition contained no YAML document.
	ErrEmptyDocument = errors.New("empty agent definition")

	// ErrInvalidRoot indicates the document root is not a mapping.
	ErrInvalidRoot = errors.New("invalid YAML structure: expected an object at root level")

	// ErrInvalidConfig is wrapped by ValidationResult.Err when a definition has blocking errors.
	ErrInvalidConfig = errors.New("invalid agent definition")
)

// ParseError reports a definition that could not be deserialized.
type ParseError struct {
	Line   int // 1-based, 0 when unknown
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse agent definition: line %d column %d: %v", e.Line, e.Column, e.Err)
	}

	return fmt.Sprintf("parse agent definition: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError

	return errors.As(err, &pe)
}

// ValidationResult is the outcome of Validate. Errors block execution, warnings do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Err returns nil for a valid result and an error wrapping ErrInvalidConfig otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(r.Errors, "; "))
}
