// Package vm provides error handling for the ACS virtual machine.
package vm

import (
	"fmt"
)

// ErrorType represents the type of runtime error.
type ErrorType string

const (
	// Instance faults - the offending instance is terminated
	ErrorStackFault     ErrorType = "STACK_FAULT"
	ErrorBytecodeFault  ErrorType = "BYTECODE_FAULT"
	ErrorDivisionByZero ErrorType = "DIVISION_BY_ZERO"
	ErrorRunaway        ErrorType = "RUNAWAY_SCRIPT"

	// Request failures - reported to the caller, no state change
	ErrorDuplicateScript ErrorType = "DUPLICATE_SCRIPT"
	ErrorUnknownScript   ErrorType = "UNKNOWN_SCRIPT"
	ErrorStoreFull       ErrorType = "STORE_FULL"
	ErrorInvalidRequest  ErrorType = "INVALID_REQUEST"

	// Bridge failures - swallowed, the script continues
	ErrorResourceBridge ErrorType = "RESOURCE_BRIDGE"
)

// RuntimeError represents an error raised by the VM.
type RuntimeError struct {
	Type    ErrorType
	Message string
	Script  int32 // script number, -1 if not tied to a script
	Offset  int   // instruction offset, -1 if unknown
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Script >= 0 && e.Offset >= 0:
		return fmt.Sprintf("[%s] %s (script %d at %d)", e.Type, e.Message, e.Script, e.Offset)
	case e.Script >= 0:
		return fmt.Sprintf("[%s] %s (script %d)", e.Type, e.Message, e.Script)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// IsFatal returns true if the error ends the instance that raised it.
func (e *RuntimeError) IsFatal() bool {
	switch e.Type {
	case ErrorStackFault, ErrorBytecodeFault, ErrorDivisionByZero, ErrorRunaway:
		return true
	default:
		return false
	}
}

// NewRuntimeError creates a new RuntimeError not tied to a script.
func NewRuntimeError(errType ErrorType, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
		Script:  -1,
		Offset:  -1,
	}
}

func scriptError(errType ErrorType, script int32, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Script:  script,
		Offset:  -1,
	}
}

func (in *Instance) fault(errType ErrorType, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Script:  in.Number(),
		Offset:  in.opStart,
	}
}

// NewDuplicateScriptError reports a start against an active script.
func NewDuplicateScriptError(number int32, state State) *RuntimeError {
	return scriptError(ErrorDuplicateScript, number, "script is %s", state)
}

// NewUnknownScriptError reports a reference to an undefined script.
func NewUnknownScriptError(number int32) *RuntimeError {
	return scriptError(ErrorUnknownScript, number, "unknown script")
}
