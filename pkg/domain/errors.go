package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the model descriptor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNetwork wraps transport failures talking to the API.
	ErrNetwork = errors.New("network error")

	ErrAuthRequired        = errors.New("authentication required")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUpload              = errors.New("upload failed")
	ErrUploadInProgress    = errors.New("upload already in progress")
	ErrRunInProgress       = errors.New("run already in progress")
	ErrUnknownField        = errors.New("unknown field")
	ErrNoResult            = errors.New("no result available")
	ErrStopped             = errors.New("workflow stopped")
)

// ValidationError lists the display names of required fields that are unset.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Please provide: " + strings.Join(e.Missing, ", ")
}

// CreditError carries the numbers behind ErrInsufficientCredits.
type CreditError struct {
	Cost    int
	Credits int
}

func (e *CreditError) Error() string {
	return fmt.Sprintf("Insufficient credits. You need %d more credits.", e.Cost-e.Credits)
}

func (e *CreditError) Is(target error) bool { return target == ErrInsufficientCredits }

// UploadError is field-local: the workflow continues and the field stays unset.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upload %s: failed", e.Key)
	}
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// APIError is a non-2xx answer from the API. Message and Detail mirror the
// body's "message" and "error"/"detail" fields.
type APIError struct {
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Detail != "":
		return fmt.Sprintf("api error (%d): %s: %s", e.Status, e.Message, e.Detail)
	case e.Message != "":
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	case e.Detail != "":
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == 404
}
