package common

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/payslip-splitter/constants"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Pipeline errors
var (
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrExtraction        = errors.New("extraction failed")
	ErrNaming            = errors.New("naming failed")
	ErrCancelled         = errors.New("cancelled")
	ErrBatchClosed       = errors.New("batch no longer accepts reports")
	ErrNotComplete       = errors.New("batch not complete")
	ErrNoBundle          = errors.New("batch has no bundle")
	ErrInvalidTransition = errors.New("invalid page status transition")
	ErrDuplicateBatch    = errors.New("batch already registered")
)

// NewAppError builds an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CorruptDocumentError means the source document structure is unusable.
// It is whole-batch and never retried.
type CorruptDocumentError struct {
	Cause error
}

func (e *CorruptDocumentError) Error() string {
	if e.Cause == nil {
		return ErrCorruptDocument.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCorruptDocument, e.Cause)
}

func (e *CorruptDocumentError) Unwrap() error        { return e.Cause }
func (e *CorruptDocumentError) Is(target error) bool { return target == ErrCorruptDocument }

// ExtractionError means a single page could not be processed by OCR.
type ExtractionError struct {
	Page  int
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, ErrExtraction, e.Cause)
}

func (e *ExtractionError) Unwrap() error        { return e.Cause }
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// NamingError means a filename could not be derived for a page.
type NamingError struct {
	Page  int
	Cause error
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, ErrNaming, e.Cause)
}

func (e *NamingError) Unwrap() error        { return e.Cause }
func (e *NamingError) Is(target error) bool { return target == ErrNaming }

// KindOf classifies err into the pipeline error taxonomy. Unknown errors are
// page-scoped extraction failures.
func KindOf(err error) constants.ErrorKind {
	switch {
	case errors.Is(err, ErrCorruptDocument):
		return constants.ErrorKindCorruptDocument
	case errors.Is(err, ErrCancelled):
		return constants.ErrorKindCancelled
	case errors.Is(err, ErrNaming):
		return constants.ErrorKindNaming
	default:
		return constants.ErrorKindExtraction
	}
}
