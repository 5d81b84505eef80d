package constants

// FieldState tags each extracted field.
type FieldState string

const (
	FieldMissing       FieldState = "MISSING"
	FieldValid         FieldState = "VALID"
	FieldLowConfidence FieldState = "LOW_CONFIDENCE"
)

// Recognition methods recorded on extracted fields.
const (
	MethodPDFText = "pdf-text"
	MethodPDFOCR  = "pdf-ocr"
)
