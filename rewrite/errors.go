// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package rewrite

import (
	"context"
	"errors"
	"fmt"
)

// ErrOpenInput is returned when the input file can't be read.
type ErrOpenInput struct {
	Path string
	Err  error
}

func (e *ErrOpenInput) Error() string {
	return fmt.Sprintf("open input %s: %v", e.Path, e.Err)
}

func (e *ErrOpenInput) Unwrap() error {
	return e.Err
}

// ErrOpenOutput is returned when the output file can't be opened for writing.
type ErrOpenOutput struct {
	Path string
	Err  error
}

func (e *ErrOpenOutput) Error() string {
	return fmt.Sprintf("open output %s: %v", e.Path, e.Err)
}

func (e *ErrOpenOutput) Unwrap() error {
	return e.Err
}

// ErrWriteOutput is returned when a write to an open output file fails.
// Lines written before the failure stay in the file.
type ErrWriteOutput struct {
	Path string
	Line int
	Err  error
}

func (e *ErrWriteOutput) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("write output %s: line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("write output %s: %v", e.Path, e.Err)
}

func (e *ErrWriteOutput) Unwrap() error {
	return e.Err
}

// ErrStaleOutput is returned by Check when the output file does not
// hold what a rewrite of the input would produce.
type ErrStaleOutput struct {
	Path string
	Want string // digest of the rendered output
	Have string // digest of the file
}

func (e *ErrStaleOutput) Error() string {
	return fmt.Sprintf("%s is out of date (want digest %s, have %s)", e.Path, e.Want, e.Have)
}

// Error code constants for the run ledger.
const (
	ErrCodeOpenInput   = "OPEN_INPUT"
	ErrCodeOpenOutput  = "OPEN_OUTPUT"
	ErrCodeWriteOutput = "WRITE_OUTPUT"
	ErrCodeStaleOutput = "STALE_OUTPUT"
	ErrCodeCanceled    = "CANCELED"
	ErrCodeUnknown     = "UNKNOWN"
)

// ErrorCode returns the error code string for a given error.
// A nil error has no code.
func ErrorCode(err error) string {
	var errOpenInput *ErrOpenInput
	var errOpenOutput *ErrOpenOutput
	var errWriteOutput *ErrWriteOutput
	var errStaleOutput *ErrStaleOutput
	switch {
	case err == nil:
		return ""
	case errors.As(err, &errOpenInput):
		return ErrCodeOpenInput
	case errors.As(err, &errOpenOutput):
		return ErrCodeOpenOutput
	case errors.As(err, &errWriteOutput):
		return ErrCodeWriteOutput
	case errors.As(err, &errStaleOutput):
		return ErrCodeStaleOutput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCanceled
	default:
		return ErrCodeUnknown
	}
}
