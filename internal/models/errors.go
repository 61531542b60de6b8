package models

import "fmt"

// ValidationError reports missing or conflicting configuration. It is
// always raised before any credential or network activity.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// AuthLoadError reports credential material rejected by the loader, e.g.
// a malformed key or a wrong passphrase.
type AuthLoadError struct {
	Cause error
}

func (e *AuthLoadError) Error() string {
	return fmt.Sprintf("loading credential: %v", e.Cause)
}

func (e *AuthLoadError) Unwrap() error {
	return e.Cause
}

// ScriptNotFoundError reports a script file that could not be read.
type ScriptNotFoundError struct {
	Path  string
	Cause error
}

func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("script file %s: %v", e.Path, e.Cause)
}

func (e *ScriptNotFoundError) Unwrap() error {
	return e.Cause
}
