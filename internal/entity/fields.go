package entity

import "github.com/joseph-ayodele/payslip-splitter/constants"

// Field is one optional value located on a page.
type Field struct {
	Value      string               `json:"value,omitempty"`
	State      constants.FieldState `json:"state"`
	Confidence float32              `json:"confidence"`
}

// Missing returns a field with no value.
func Missing() Field {
	return Field{State: constants.FieldMissing}
}

// Present reports whether the field carries a value, whatever its confidence.
func (f Field) Present() bool {
	return f.State != constants.FieldMissing && f.Value != ""
}

// ExtractedFields is the fixed field schema parsed from one page.
type ExtractedFields struct {
	Identifier Field  `json:"identifier"`
	Surname    Field  `json:"surname"`
	GivenName  Field  `json:"given_name"`
	Period     Field  `json:"period"`
	Method     string `json:"method,omitempty"`
}

// Matched counts the fields that carry a value.
func (f ExtractedFields) Matched() int {
	n := 0
	for _, fld := range []Field{f.Identifier, f.Surname, f.GivenName, f.Period} {
		if fld.Present() {
			n++
		}
	}
	return n
}
